package scheduler

import (
	"testing"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareRegistersOneJobPerEntry(t *testing.T) {
	cfg := &config.NowcastConfig{
		ScheduledWorkers: []map[string]config.ScheduledWorkerParams{
			{"download_weather": {Every: "day", At: "06:05"}},
			{"download_live_ocean": {Every: "hour", At: "00:20"}},
			{"make_plots": {Every: "monday", At: "09:00", CmdLineOpts: "--debug --force"}},
		},
	}

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Prepare())

	assert.Equal(t, 3, s.JobCount())
}

func TestPrepareRejectsBadClockTime(t *testing.T) {
	cfg := &config.NowcastConfig{
		ScheduledWorkers: []map[string]config.ScheduledWorkerParams{
			{"download_weather": {Every: "day", At: "not-a-time"}},
		},
	}

	s, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, s.Prepare())
}

func TestPrepareRejectsUnknownUnit(t *testing.T) {
	cfg := &config.NowcastConfig{
		ScheduledWorkers: []map[string]config.ScheduledWorkerParams{
			{"download_weather": {Every: "fortnight", At: "06:00"}},
		},
	}

	s, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, s.Prepare())
}

func TestSplitArgs(t *testing.T) {
	assert.Nil(t, splitArgs("   "))
	assert.Equal(t, []string{"--debug", "--force"}, splitArgs("--debug --force"))
}
