// Command worker-clear-checklist asks the manager to clear its
// persisted system-state checklist. Normally launched at the end of
// a processing cycle, just before worker-rotate-logs.
package main

import (
	"os"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/internal/workerharness"
	log "github.com/sirupsen/logrus"
)

func main() {
	h := workerharness.New("clear_checklist")

	if err := h.Run(clearChecklist, success, failure); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("clear_checklist worker exited with error")
		os.Exit(1)
	}
}

func clearChecklist(args *workerharness.WorkerArgs, cfg *config.NowcastConfig, tell workerharness.TellManagerFunc) (interface{}, error) {
	log.Info("requesting that manager clear system state checklist")
	if _, err := tell("clear checklist", nil); err != nil {
		return nil, err
	}
	return nil, nil
}

func success(args *workerharness.WorkerArgs) string {
	log.Info("nowcast system checklist cleared")
	return "success"
}

func failure(args *workerharness.WorkerArgs) string {
	log.Error("failed to clear nowcast system checklist")
	return "failure"
}
