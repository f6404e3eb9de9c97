// Command worker-sleep is a minimal worker that does nothing but
// sleep for a configurable duration, demonstrating the harness's
// CLI/config/checklist-delta contract.
package main

import (
	"os"
	"strconv"
	"time"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/internal/workerharness"
	log "github.com/sirupsen/logrus"
)

func main() {
	h := workerharness.New("sleep")
	h.AddArgument("sleep-time", "5", "number of seconds to sleep for")

	if err := h.Run(sleep, success, failure); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("sleep worker exited with error")
		os.Exit(1)
	}
}

func sleepTime(args *workerharness.WorkerArgs) int {
	n, err := strconv.Atoi(args.Extra["sleep-time"])
	if err != nil {
		return 5
	}
	return n
}

func sleep(args *workerharness.WorkerArgs, cfg *config.NowcastConfig, tell workerharness.TellManagerFunc) (interface{}, error) {
	seconds := sleepTime(args)
	time.Sleep(time.Duration(seconds) * time.Second)
	return map[string]interface{}{"sleep time": seconds}, nil
}

func success(args *workerharness.WorkerArgs) string {
	log.WithFields(log.Fields{"sleep_time": sleepTime(args)}).Info("slept")
	return "success"
}

func failure(args *workerharness.WorkerArgs) string {
	log.WithFields(log.Fields{"sleep_time": sleepTime(args)}).Error("failed to sleep")
	return "failure"
}
