package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func everyMinute(t *testing.T) cron.Schedule {
	t.Helper()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse("* * * * *")
	require.NoError(t, err)
	return schedule
}

func TestCronScheduler_FiresOnMatchingTick(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	logger := NewLogrusAdapter(logrus.PanicLevel)
	s := newCronScheduler(logger, clock)
	s.Start()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	s.Register(everyMinute(t), func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	clock.Advance(61 * time.Second)
	clock.WaitForAdvance()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
}

func TestCronScheduler_Unregister(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	logger := NewLogrusAdapter(logrus.PanicLevel)
	s := newCronScheduler(logger, clock)
	s.Start()
	defer s.Stop()

	var fired int32
	h := s.Register(everyMinute(t), func() { atomic.AddInt32(&fired, 1) })
	s.Unregister(h)

	clock.Advance(2 * time.Minute)
	clock.WaitForAdvance()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "expected unregistered task not to fire")
}

func TestOccurrencesBetween(t *testing.T) {
	t.Parallel()

	schedule := everyMinute(t)
	after := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	upTo := after.Add(5 * time.Minute)

	occurrences := occurrencesBetween(schedule, after, upTo)
	require.Len(t, occurrences, 5)
	for _, occ := range occurrences {
		assert.False(t, occ.After(upTo), "occurrence %v is after upTo %v", occ, upTo)
	}
}
