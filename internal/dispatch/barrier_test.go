package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarrierScenarioS5(t *testing.T) {
	barrier := Install([]string{"B", "C"})

	// A is in the current hook's bare list and launches immediately
	// alongside installing the barrier.
	successors, barrier := barrier.Apply("X", []NextWorker{New("A")})
	assert.Equal(t, []NextWorker{New("A")}, successors)
	assert.True(t, barrier.Active())

	// Message from B: its successor D is diverted, nothing launches.
	successors, barrier = barrier.Apply("B", []NextWorker{New("D")})
	assert.Empty(t, successors)
	assert.True(t, barrier.Active())

	// Message from C completes the barrier: D and E are released together.
	successors, barrier = barrier.Apply("C", []NextWorker{New("E")})
	assert.ElementsMatch(t, []NextWorker{New("D"), New("E")}, successors)
	assert.Nil(t, barrier)
}

func TestBarrierInactivePassesThrough(t *testing.T) {
	var barrier *Barrier
	successors, next := barrier.Apply("sleep", []NextWorker{New("awaken")})
	assert.Equal(t, []NextWorker{New("awaken")}, successors)
	assert.Nil(t, next)
}

func TestBarrierUnrelatedSourceDoesNotDivert(t *testing.T) {
	barrier := Install([]string{"B"})
	successors, barrier := barrier.Apply("other", []NextWorker{New("Z")})
	assert.Equal(t, []NextWorker{New("Z")}, successors)
	assert.True(t, barrier.Active())
}
