package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/chron/core"
	"github.com/netresearch/chron/store"
)

func newTestSupervisor(t *testing.T) *core.Supervisor {
	t.Helper()
	dir := t.TempDir()

	runStore, err := store.NewRunStatusStore(filepath.Join(dir, "jobStatus.json"))
	require.NoError(t, err)
	mailbox, err := store.NewMailbox(filepath.Join(dir, "mailbox.json"))
	require.NoError(t, err)

	logger := core.NewLogrusAdapter(logrus.PanicLevel)
	clock := core.NewFakeClock(time.Now())
	return core.NewSupervisor(logger, clock, runStore, mailbox, dir, 0)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chronfile.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_RegistersStartupAndScheduledJobs(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[startup.echo-loop]
command = "true"
keepAlive = false

[schedule.tick]
schedule = "* * * * *"
command = "true"
allowConcurrentRuns = false
makeUpMissedRuns = 0
`)

	sup := newTestSupervisor(t)
	require.NoError(t, Load(sup, path))

	names := make(map[string]bool)
	for _, j := range sup.ListJobs() {
		names[j.Name] = true
	}
	require.True(t, names["echo-loop"])
	require.True(t, names["tick"])
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[startup.bad]
command = "true"
bogusField = "x"
`)

	sup := newTestSupervisor(t)
	err := Load(sup, path)
	require.Error(t, err)
}

func TestLoad_RejectsInvalidCron(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[schedule.bad]
schedule = "not a cron expression"
command = "true"
`)

	sup := newTestSupervisor(t)
	err := Load(sup, path)
	require.Error(t, err)
}

func TestLoad_TwiceWithResetYieldsSameRegistry(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[startup.a]
command = "true"
keepAlive = false
`)

	sup := newTestSupervisor(t)
	require.NoError(t, Load(sup, path))
	first := sup.ListJobs()

	require.NoError(t, Load(sup, path))
	second := sup.ListJobs()

	require.Equal(t, len(first), len(second))
}

func TestParseMakeUpMissedRuns(t *testing.T) {
	t.Parallel()

	all, err := parseMakeUpMissedRuns("all")
	require.NoError(t, err)
	require.True(t, all.All)

	count, err := parseMakeUpMissedRuns("3")
	require.NoError(t, err)
	require.Equal(t, 3, count.Count)

	_, err = parseMakeUpMissedRuns("-1")
	require.Error(t, err)

	_, err = parseMakeUpMissedRuns("not-a-number")
	require.Error(t, err)

	zero, err := parseMakeUpMissedRuns("")
	require.NoError(t, err)
	require.False(t, zero.All)
	require.Equal(t, 0, zero.Count)
}
