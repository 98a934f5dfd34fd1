package core

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/netresearch/chron/store"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// JobSummary is the control plane's view of a single registered job
// (spec.md §4.5, `GET /`).
type JobSummary struct {
	Name    string
	Running bool
}

// JobStatusInfo is the control plane's detailed view of one job
// (spec.md §4.5, `GET /job/:name/status`).
type JobStatusInfo struct {
	Name    string
	Kind    Kind
	Runs    []store.RunStatusEntry
	NextRun *time.Time
	PID     *int
}

// Supervisor is the Supervisor Core (spec.md §4.1): it owns the job
// registry, spawns and tracks child processes, and drives both startup
// restart loops and scheduled firings.
type Supervisor struct {
	logger    Logger
	clock     Clock
	scheduler *cronScheduler
	runStore  *store.RunStatusStore
	mailbox   *store.Mailbox

	chronDir string
	port     int

	mu   sync.Mutex
	gen  *Generation
	jobs map[string]*Job

	wg sync.WaitGroup
}

// NewSupervisor constructs a Supervisor over the given stores. port is 0
// when the control plane is not bound, in which case child processes do
// not receive CHRON_MAILBOX_URL.
func NewSupervisor(logger Logger, clock Clock, runStore *store.RunStatusStore, mailbox *store.Mailbox, chronDir string, port int) *Supervisor {
	s := &Supervisor{
		logger:    logger,
		clock:     clock,
		scheduler: newCronScheduler(logger, clock),
		runStore:  runStore,
		mailbox:   mailbox,
		chronDir:  chronDir,
		port:      port,
		gen:       NewGeneration(),
		jobs:      make(map[string]*Job),
	}
	s.scheduler.Start()
	return s
}

func (s *Supervisor) logPath(name string) string {
	return filepath.Join(s.chronDir, "logs", name+".log")
}

// register validates name and, if valid and unique, reserves it in the
// registry by inserting job. The caller must have fully initialized job
// before calling; on success job is visible to every other accessor.
func (s *Supervisor) register(name string, job *Job) error {
	if name == "" || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	s.jobs[name] = job
	return nil
}

// Startup validates name, registers a startup job, and launches its
// restart loop in the background. Unlike a literal reading of "returns
// once the loop exits", Startup returns as soon as the job is registered
// so that a config with several keep-alive jobs can finish loading; the
// loop itself runs until the job's generation trips, or for a single run
// when keepAlive is false.
func (s *Supervisor) Startup(name, command string, keepAlive bool) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	j := newJob(name, command, KindStartup, s.logPath(name), gen)
	j.KeepAlive = keepAlive

	if err := s.register(name, j); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStartupLoop(j)
	}()
	return nil
}

// Schedule validates name, parses cronExpr, registers a scheduled job
// with the cron scheduler, and synchronously performs missed-run
// catch-up before returning.
func (s *Supervisor) Schedule(name, cronExpr, command string, allowConcurrentRuns bool, makeUp MakeUpMissedRuns) error {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, cronExpr, err)
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	j := newJob(name, command, KindScheduled, s.logPath(name), gen)
	j.CronExpression = cronExpr
	j.Schedule = schedule
	j.AllowConcurrentRuns = allowConcurrentRuns
	j.MakeUpMissedRuns = makeUp

	if err := s.register(name, j); err != nil {
		return err
	}

	j.schedulerHandle = s.scheduler.Register(schedule, func() {
		s.scheduledCallback(j)
	})

	s.catchUp(j)
	return nil
}

// Reset trips the current generation (signaling SIGTERM to every live
// child and blocking future spawns under it), unregisters every scheduled
// task, clears the registry, and installs a fresh generation for
// subsequent registrations.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	oldGen := s.gen
	for _, j := range s.jobs {
		if j.Kind == KindScheduled {
			s.scheduler.Unregister(j.schedulerHandle)
		}
	}
	s.jobs = make(map[string]*Job)
	s.gen = NewGeneration()
	s.mu.Unlock()

	oldGen.Trip()
}

// ListJobs returns a snapshot of every registered job.
func (s *Supervisor) ListJobs() []JobSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobSummary, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobSummary{Name: j.Name, Running: j.Running()})
	}
	return out
}

// RecentRuns returns up to the 3 most recent run-status entries for name,
// sorted by timestamp descending.
func (s *Supervisor) RecentRuns(name string) []store.RunStatusEntry {
	entries := s.runStore.FindByName(name)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	if len(entries) > 3 {
		entries = entries[:3]
	}
	return entries
}

// Mailbox returns the shared mailbox, for control-plane routes that
// operate on it directly.
func (s *Supervisor) Mailbox() *store.Mailbox {
	return s.mailbox
}

// JobStatus returns the detailed status view for name, or false if no
// such job is registered.
func (s *Supervisor) JobStatus(name string) (JobStatusInfo, bool) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return JobStatusInfo{}, false
	}

	info := JobStatusInfo{
		Name: j.Name,
		Kind: j.Kind,
		Runs: s.RecentRuns(name),
	}
	if next, ok := j.NextRun(s.clock.Now()); ok {
		info.NextRun = &next
	}
	if pid, ok := j.PID(); ok {
		info.PID = &pid
	}
	return info, true
}

// TerminateJob sends SIGTERM to the named job's live child, if any.
// found reports whether the job exists at all; terminated reports
// whether a process was actually signaled.
func (s *Supervisor) TerminateJob(name string) (found, terminated bool) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, false
	}
	return true, j.Terminate()
}

// runStartupLoop executes the job repeatedly until it is not KeepAlive or
// its generation trips (spec.md §4.1 "Startup loop").
func (s *Supervisor) runStartupLoop(j *Job) {
	for {
		if j.gen.Tripped() {
			return
		}

		s.execute(j)

		if !j.KeepAlive {
			return
		}
		if j.gen.Tripped() {
			return
		}

		select {
		case <-s.clock.After(5 * time.Second):
		case <-j.gen.Done():
			return
		}
	}
}

// scheduledCallback is invoked by the cron scheduler's poll loop on every
// matching tick. It must not block the tick thread; the execution path
// runs on its own goroutine so one slow job can't delay others.
func (s *Supervisor) scheduledCallback(j *Job) {
	if j.gen.Tripped() {
		return
	}
	if j.Running() && !j.AllowConcurrentRuns {
		s.logger.Warningf("Skipping %s because it is still running", j.Name)
		return
	}
	go s.execute(j)
}

// catchUp implements the missed-run catch-up algorithm (spec.md §4.1).
func (s *Supervisor) catchUp(j *Job) {
	last, ok := s.runStore.LastTimestamp(j.Name)
	if !ok {
		return
	}

	now := s.clock.Now()
	occurrences := occurrencesBetween(j.Schedule, time.UnixMilli(last), now)
	m := len(occurrences)
	if m == 0 {
		return
	}

	c := m
	if !j.MakeUpMissedRuns.All && j.MakeUpMissedRuns.Count < m {
		c = j.MakeUpMissedRuns.Count
	}
	if c <= 0 {
		return
	}

	s.logger.Warningf("Making up %d of %d missed runs for %s", c, m, j.Name)
	for i := 0; i < c; i++ {
		s.execute(j)
	}
}

// execute runs a single invocation of j through to completion: insert
// run-status entry, open log, spawn the child, await exit, update status,
// post an @errors message on failure, write the log footer (spec.md §4.1
// "Execution path", steps 1-9).
func (s *Supervisor) execute(j *Job) {
	if j.gen.Tripped() {
		return
	}

	start := s.clock.Now()
	entry := store.RunStatusEntry{
		ID:        store.NewID(),
		Name:      j.Name,
		Timestamp: start.UnixMilli(),
	}
	if err := s.runStore.Insert(entry); err != nil {
		s.logger.Errorf("insert run-status entry for %s: %v", j.Name, err)
	}

	// A log file that cannot be opened is logged and the child runs without
	// output redirection; the invocation itself still completes.
	logFile, err := openLogFile(j.LogPath, start)
	if err != nil {
		s.logger.Errorf("open log file for %s: %v", j.Name, err)
	} else {
		defer logFile.Close()
	}

	cmd := exec.Command("sh", "-c", j.Command)
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	cmd.Env = os.Environ()
	if s.port > 0 {
		cmd.Env = append(cmd.Env, fmt.Sprintf("CHRON_MAILBOX_URL=http://0.0.0.0:%d/mailbox/%s", s.port, j.Name))
	}

	if err := cmd.Start(); err != nil {
		s.logger.Errorf("spawn %s: %v", j.Name, err)
		if uerr := s.runStore.Update(entry.ID, -1); uerr != nil {
			s.logger.Errorf("update run-status entry for %s: %v", j.Name, uerr)
		}
		if logFile != nil {
			if ferr := writeLogFooter(logFile, -1); ferr != nil {
				s.logger.Errorf("write log footer for %s: %v", j.Name, ferr)
			}
		}
		return
	}

	j.addRunning(entry.ID, cmd)
	deregister := j.gen.OnTrip(func() {
		j.Terminate()
	})

	waitErr := cmd.Wait()
	deregister()
	j.removeRunning(entry.ID)

	code := exitCodeOf(waitErr)

	if err := s.runStore.Update(entry.ID, code); err != nil {
		s.logger.Errorf("update run-status entry for %s: %v", j.Name, err)
	}

	if code != 0 {
		msg := fmt.Sprintf("%s failed with status code %d", j.Name, code)
		if _, err := s.mailbox.Add(store.ErrorsSource, msg); err != nil {
			s.logger.Errorf("post @errors message for %s: %v", j.Name, err)
		}
	}

	if logFile != nil {
		if err := writeLogFooter(logFile, code); err != nil {
			s.logger.Errorf("write log footer for %s: %v", j.Name, err)
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
