package workerharness

import (
	"context"
	"testing"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/core/nowcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.NowcastConfig {
	return &config.NowcastConfig{
		MessageRegistry: config.MessageRegistryConfig{
			Workers: map[string]config.WorkerRegistryEntry{
				"sleep": {
					ChecklistKey: "sleep",
					MessageTypes: map[string]string{
						"success": "slept",
						"failure": "could not sleep",
					},
				},
			},
			Manager: map[string]string{
				"ack": "message acknowledged",
			},
		},
	}
}

// Debug isolation (invariant 5): a harness run in debug mode performs
// zero transport I/O from tell_manager — there is no socket to use —
// and still enforces the registry validation contract.
func TestTellManagerDebugModePerformsNoIO(t *testing.T) {
	h := New("sleep")
	h.debug = true
	cfg := testConfig()

	tell := h.tellManagerFunc(context.Background(), cfg, nil)

	reply, err := tell("success", map[string]interface{}{"duration": 10})
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestTellManagerRejectsUnregisteredWorker(t *testing.T) {
	h := New("ghost")
	h.debug = true
	cfg := testConfig()

	tell := h.tellManagerFunc(context.Background(), cfg, nil)

	_, err := tell("success", nil)
	assert.True(t, nowcast.IsWorkerError(err))
}

func TestTellManagerRejectsUndeclaredMessageType(t *testing.T) {
	h := New("sleep")
	h.debug = true
	cfg := testConfig()

	tell := h.tellManagerFunc(context.Background(), cfg, nil)

	_, err := tell("unexpected", nil)
	assert.True(t, nowcast.IsWorkerError(err))
}

func TestAddArgumentIsRetrievableFromExtra(t *testing.T) {
	h := New("sleep")
	h.AddArgument("duration", "30", "sleep duration in seconds")

	require.Contains(t, h.extra, "duration")
	assert.Equal(t, "30", *h.extra["duration"])
}
