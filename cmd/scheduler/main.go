// Command scheduler fires configured workers at fixed wall-clock
// times, independent of the manager's event-driven dispatch.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathomrun/nowcast/core/config"
	corelog "github.com/fathomrun/nowcast/core/log"
	"github.com/fathomrun/nowcast/core/util"
	"github.com/fathomrun/nowcast/internal/scheduler"
	"github.com/nelkinda/health-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           "scheduler config_file",
		Short:         "nowcast launch scheduler",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}

	if err := cmd.Execute(); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("scheduler exited with error")
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load scheduler configuration: %w", err)
	}
	corelog.Initialize(cfg.Logging)

	mux := http.NewServeMux()
	h := health.New(health.Health{Version: "1", ReleaseID: "1.0.0-SNAPSHOT"})
	mux.HandleFunc("/healthz", h.Handler)
	httpPort := util.GetenvInt("NOWCAST_SCHEDULER_HEALTH_PORT", cfg.HTTP.Port)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{"error": err}).Error("scheduler health server failed")
		}
	}()
	defer httpSrv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		s, err := scheduler.New(cfg)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if err := s.Prepare(); err != nil {
			return fmt.Errorf("prepare scheduled jobs: %w", err)
		}
		s.Start()
		log.WithFields(log.Fields{"jobs": s.JobCount()}).Info("scheduler started")

		sig := <-sigCh
		if err := s.Shutdown(); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("scheduler failed to shut down cleanly")
		}

		if sig != syscall.SIGHUP {
			log.WithFields(log.Fields{"signal": sig.String()}).Info("scheduler shutting down")
			return nil
		}

		log.Info("scheduler received SIGHUP, reloading configuration")
		reloaded, err := config.LoadConfig(configFile)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("failed to reload configuration, keeping previous config")
			continue
		}
		cfg = reloaded
		corelog.Initialize(cfg.Logging)
	}
}
