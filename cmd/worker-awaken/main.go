// Command worker-awaken does nothing but report that it ran,
// demonstrating a worker launched as another worker's successor.
package main

import (
	"os"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/internal/workerharness"
	log "github.com/sirupsen/logrus"
)

func main() {
	h := workerharness.New("awaken")

	if err := h.Run(awaken, success, failure); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("awaken worker exited with error")
		os.Exit(1)
	}
}

func awaken(args *workerharness.WorkerArgs, cfg *config.NowcastConfig, tell workerharness.TellManagerFunc) (interface{}, error) {
	return map[string]interface{}{"awoke": true}, nil
}

func success(args *workerharness.WorkerArgs) string {
	log.Info("awoke")
	return "success"
}

func failure(args *workerharness.WorkerArgs) string {
	log.Error("failed to awaken")
	return "failure"
}
