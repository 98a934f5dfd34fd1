package core

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// sigterm is the only signal the supervisor ever sends a child process
// (spec.md §5: no SIGKILL escalation).
var sigterm = syscall.SIGTERM

// Kind distinguishes the two flavors of job the supervisor runs.
type Kind int

const (
	// KindStartup is an always-on job executed in a restart loop.
	KindStartup Kind = iota
	// KindScheduled is a job driven by a cron expression.
	KindScheduled
)

func (k Kind) String() string {
	if k == KindScheduled {
		return "scheduled"
	}
	return "startup"
}

// MakeUpMissedRuns encodes the scheduled-job make-up-missed-runs option:
// either a fixed non-negative count, or the "all" sentinel.
type MakeUpMissedRuns struct {
	All   bool
	Count int
}

// Job is a registered unit of work, covering both startup and scheduled
// jobs. Fields not relevant to a job's Kind are left zero.
type Job struct {
	Name    string
	Command string
	Kind    Kind
	LogPath string

	// Startup-only.
	KeepAlive bool

	// Scheduled-only.
	CronExpression      string
	Schedule            cron.Schedule
	AllowConcurrentRuns bool
	MakeUpMissedRuns    MakeUpMissedRuns

	gen             *Generation
	schedulerHandle TaskHandle

	mu      sync.Mutex
	running map[string]*exec.Cmd
}

// newJob returns a Job with its internal bookkeeping initialized.
func newJob(name, command string, kind Kind, logPath string, gen *Generation) *Job {
	return &Job{
		Name:    name,
		Command: command,
		Kind:    kind,
		LogPath: logPath,
		gen:     gen,
		running: make(map[string]*exec.Cmd),
	}
}

// Running reports whether the job currently has at least one live child
// process.
func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.running) > 0
}

// PID returns the process id of an arbitrary live child, if any.
func (j *Job) PID() (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, cmd := range j.running {
		if cmd.Process != nil {
			return cmd.Process.Pid, true
		}
	}
	return 0, false
}

func (j *Job) addRunning(executionID string, cmd *exec.Cmd) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running[executionID] = cmd
}

func (j *Job) removeRunning(executionID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.running, executionID)
}

// Terminate sends SIGTERM to every live child of this job. Returns true if
// at least one process was signaled.
func (j *Job) Terminate() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	signaled := false
	for _, cmd := range j.running {
		if cmd.Process != nil {
			if err := cmd.Process.Signal(sigterm); err == nil {
				signaled = true
			}
		}
	}
	return signaled
}

// NextRun returns the next firing instant for a scheduled job, relative to
// now. Only meaningful for KindScheduled jobs.
func (j *Job) NextRun(now time.Time) (time.Time, bool) {
	if j.Kind != KindScheduled || j.Schedule == nil {
		return time.Time{}, false
	}
	return j.Schedule.Next(now), true
}
