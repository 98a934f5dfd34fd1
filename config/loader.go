// Package config parses the chronfile and drives the supervisor from it,
// both at startup and on every debounced file-change event.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
	ini "gopkg.in/ini.v1"

	"github.com/netresearch/chron/core"
)

const (
	startupPrefix  = "startup."
	schedulePrefix = "schedule."
)

// startupEntry is the decoded shape of a `[startup.<name>]` section.
type startupEntry struct {
	Command   string `mapstructure:"command"`
	KeepAlive bool   `mapstructure:"keepAlive" default:"true"`
}

// scheduleEntry is the decoded shape of a `[schedule.<name>]` section.
// MakeUpMissedRuns stays a string through decode since it accepts either a
// non-negative integer or the literal "all".
type scheduleEntry struct {
	Schedule            string `mapstructure:"schedule"`
	Command             string `mapstructure:"command"`
	AllowConcurrentRuns bool   `mapstructure:"allowConcurrentRuns" default:"false"`
	MakeUpMissedRuns    string `mapstructure:"makeUpMissedRuns" default:"0"`
}

// Load parses the chronfile at path and applies it to supervisor: it resets
// the registry, then registers every startup job followed by every
// scheduled job (spec.md §4.6). Parse failures, unknown fields, and
// validation failures are returned to the caller, wrapped with the file or
// job they concern (the sentinel stays reachable through errors.Is).
func Load(supervisor *core.Supervisor, path string) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, InsensitiveKeys: true}, path)
	if err != nil {
		return fmt.Errorf("load config file %q: %w", path, err)
	}

	startups := make(map[string]*startupEntry)
	schedules := make(map[string]*scheduleEntry)

	for _, section := range cfg.Sections() {
		name := strings.TrimSpace(section.Name())
		switch {
		case strings.HasPrefix(name, startupPrefix):
			jobName := strings.TrimPrefix(name, startupPrefix)
			entry := &startupEntry{}
			_ = defaults.Set(entry)
			if err := decodeStrict(section, entry); err != nil {
				return fmt.Errorf("decode [%s]: %w", name, err)
			}
			startups[jobName] = entry

		case strings.HasPrefix(name, schedulePrefix):
			jobName := strings.TrimPrefix(name, schedulePrefix)
			entry := &scheduleEntry{}
			_ = defaults.Set(entry)
			if err := decodeStrict(section, entry); err != nil {
				return fmt.Errorf("decode [%s]: %w", name, err)
			}
			schedules[jobName] = entry
		}
	}

	supervisor.Reset()

	for name, e := range startups {
		if err := supervisor.Startup(name, e.Command, e.KeepAlive); err != nil {
			return fmt.Errorf("startup job %q: %w", name, err)
		}
	}

	for name, e := range schedules {
		makeUp, err := parseMakeUpMissedRuns(e.MakeUpMissedRuns)
		if err != nil {
			return fmt.Errorf("schedule job %q: %w", name, err)
		}
		if err := supervisor.Schedule(name, e.Schedule, e.Command, e.AllowConcurrentRuns, makeUp); err != nil {
			return fmt.Errorf("schedule job %q: %w", name, err)
		}
	}

	return nil
}

// decodeStrict decodes an ini section into out, rejecting unknown fields
// (spec.md §4.6: "Unknown fields under a job entry are rejected (strict)"),
// which tightens the teacher's own lenient mapstructure.WeakDecode.
func decodeStrict(section *ini.Section, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(sectionToMap(section))
}

func sectionToMap(section *ini.Section) map[string]interface{} {
	m := make(map[string]interface{})
	for _, key := range section.Keys() {
		m[key.Name()] = key.Value()
	}
	return m
}

func parseMakeUpMissedRuns(raw string) (core.MakeUpMissedRuns, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.MakeUpMissedRuns{}, nil
	}
	if strings.EqualFold(raw, "all") {
		return core.MakeUpMissedRuns{All: true}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return core.MakeUpMissedRuns{}, fmt.Errorf("makeUpMissedRuns must be a non-negative integer or %q, got %q", "all", raw)
	}
	return core.MakeUpMissedRuns{Count: n}, nil
}
