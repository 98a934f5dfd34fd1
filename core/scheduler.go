package core

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskHandle identifies a registered cron task so it can later be
// unregistered. Opaque to callers.
type TaskHandle uint64

// tickInterval is the scheduler's poll period (spec.md §4.2: "a passive
// periodic scheduler polling at a 1-second tick").
const tickInterval = time.Second

// cronScheduler is the Cron Scheduler component (spec.md §4.2): it parses
// nothing itself (schedules are parsed by callers with the supervisor's
// five-field cronParser)
// but owns the 1Hz poll loop that fires registered callbacks.
//
// Unlike robfig/cron's own Cron type, this scheduler does not run its own
// per-entry goroutines; it is a single poller the supervisor drives, which
// is what lets Reset() deregister every scheduled task atomically without
// racing a background runner.
type cronScheduler struct {
	logger Logger
	clock  Clock

	mu     sync.Mutex
	tasks  map[TaskHandle]*task
	nextID TaskHandle

	ticker  Ticker
	stopped chan struct{}
	wg      sync.WaitGroup
}

type task struct {
	schedule cron.Schedule
	next     time.Time
	callback func()
}

func newCronScheduler(logger Logger, clock Clock) *cronScheduler {
	return &cronScheduler{
		logger:  logger,
		clock:   clock,
		tasks:   make(map[TaskHandle]*task),
		stopped: make(chan struct{}),
	}
}

// Register adds a task to the scheduler and returns a handle for later
// Unregister. The callback is invoked from the poll loop's goroutine on
// every tick where the task's next firing is at or before now; callers
// that don't want to block the poll loop must hand off to their own
// goroutine inside the callback.
func (s *cronScheduler) Register(schedule cron.Schedule, callback func()) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	h := s.nextID
	s.tasks[h] = &task{
		schedule: schedule,
		next:     schedule.Next(s.clock.Now()),
		callback: callback,
	}
	return h
}

// Unregister removes a task. Unregistering an unknown handle is a no-op.
func (s *cronScheduler) Unregister(h TaskHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, h)
}

// Start begins the 1Hz poll loop. Safe to call once per scheduler.
func (s *cronScheduler) Start() {
	s.ticker = s.clock.NewTicker(tickInterval)
	s.wg.Add(1)
	go s.run()
}

// Stop halts the poll loop and waits for it to exit.
func (s *cronScheduler) Stop() {
	close(s.stopped)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.wg.Wait()
}

func (s *cronScheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopped:
			return
		case now := <-s.ticker.C():
			s.fire(now)
		}
	}
}

// fire invokes every task whose next firing is at or before now, then
// advances that task to its next occurrence strictly after now. A task
// whose firing was delayed by clock drift still fires exactly once for
// the missed tick; fire never re-fires a task already advanced past now.
func (s *cronScheduler) fire(now time.Time) {
	s.mu.Lock()
	due := make([]*task, 0)
	for _, t := range s.tasks {
		if !now.Before(t.next) {
			due = append(due, t)
			t.next = t.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.callback()
	}
}

// occurrencesBetween enumerates schedule firings strictly after `after` and
// not after `upTo`, in order. Used for missed-run catch-up (spec.md §4.1).
func occurrencesBetween(schedule cron.Schedule, after, upTo time.Time) []time.Time {
	var out []time.Time
	t := after
	for {
		next := schedule.Next(t)
		if next.After(upTo) {
			return out
		}
		out = append(out, next)
		t = next
	}
}
