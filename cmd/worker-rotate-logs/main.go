// Command worker-rotate-logs is the log-rotation example worker. It
// does not contact any daemon or roll any file over: unlike the
// reference implementation, this logging stack ships to stdout/Loki
// rather than rotating file handlers, so there is nothing local to
// roll over, and the worker only logs that fact. It exists to exercise the
// harness's zero-checklist-delta success path and to give operators a
// single launch point to extend if a file-based handler is added
// later.
package main

import (
	"os"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/internal/workerharness"
	log "github.com/sirupsen/logrus"
)

func main() {
	h := workerharness.New("rotate_logs")

	if err := h.Run(rotateLogs, success, failure); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("rotate_logs worker exited with error")
		os.Exit(1)
	}
}

func rotateLogs(args *workerharness.WorkerArgs, cfg *config.NowcastConfig, tell workerharness.TellManagerFunc) (interface{}, error) {
	log.Info("rotating log files")
	log.Info("no rotating file handlers configured, nothing to roll over")
	return []string{}, nil
}

func success(args *workerharness.WorkerArgs) string {
	log.Info("log files rotated")
	return "success"
}

func failure(args *workerharness.WorkerArgs) string {
	log.Error("failed to rotate log files")
	return "failure"
}
