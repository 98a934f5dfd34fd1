package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneration_TripIsIdempotent(t *testing.T) {
	t.Parallel()

	g := NewGeneration()
	calls := 0
	g.OnTrip(func() { calls++ })

	g.Trip()
	g.Trip()
	g.Trip()

	assert.Equal(t, 1, calls, "expected hook to run exactly once")
	assert.True(t, g.Tripped())
}

func TestGeneration_OnTripAfterAlreadyTripped(t *testing.T) {
	t.Parallel()

	g := NewGeneration()
	g.Trip()

	ran := false
	g.OnTrip(func() { ran = true })

	require.True(t, ran, "expected hook registered after Trip to run immediately")
}

func TestGeneration_DeregisterPreventsCall(t *testing.T) {
	t.Parallel()

	g := NewGeneration()
	calls := 0
	deregister := g.OnTrip(func() { calls++ })
	deregister()

	g.Trip()

	assert.Equal(t, 0, calls, "expected deregistered hook not to run")
}

func TestGeneration_DoneClosesOnTrip(t *testing.T) {
	t.Parallel()

	g := NewGeneration()
	select {
	case <-g.Done():
		t.Fatal("Done channel closed before Trip")
	default:
	}

	g.Trip()

	select {
	case <-g.Done():
	default:
		t.Fatal("Done channel not closed after Trip")
	}
}
