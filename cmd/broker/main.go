// Command broker runs the stateless ROUTER/DEALER message broker that
// sits between every worker process and the manager.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathomrun/nowcast/core/config"
	corelog "github.com/fathomrun/nowcast/core/log"
	"github.com/fathomrun/nowcast/core/transport"
	"github.com/fathomrun/nowcast/core/util"
	"github.com/nelkinda/health-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           "broker config_file",
		Short:         "nowcast message broker",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}

	if err := cmd.Execute(); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("broker exited with error")
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load broker configuration: %w", err)
	}
	corelog.Initialize(cfg.Logging)

	var currentBroker *transport.Broker

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "broker_messages_forwarded_total",
		Help: "Frames forwarded between the workers and manager endpoints.",
	}, func() float64 {
		if currentBroker == nil {
			return 0
		}
		return float64(currentBroker.Forwarded)
	}))
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "broker_forward_errors_total",
		Help: "Forwarding attempts that failed.",
	}, func() float64 {
		if currentBroker == nil {
			return 0
		}
		return float64(currentBroker.Errors)
	}))

	mux := http.NewServeMux()
	h := health.New(health.Health{Version: "1", ReleaseID: "1.0.0-SNAPSHOT"})
	mux.HandleFunc("/healthz", h.Handler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpPort := util.GetenvInt("NOWCAST_BROKER_HEALTH_PORT", cfg.HTTP.Port)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{"error": err}).Error("broker health server failed")
		}
	}()
	defer httpSrv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		workersEndpoint := fmt.Sprintf("tcp://%s:%d", cfg.Zmq.Host, cfg.Zmq.Ports.Workers)
		managerEndpoint := fmt.Sprintf("tcp://%s:%d", cfg.Zmq.Host, cfg.Zmq.Ports.Manager)

		b := transport.NewBroker(workersEndpoint, managerEndpoint)
		if err := b.Bind(); err != nil {
			return fmt.Errorf("bind broker endpoints: %w", err)
		}
		currentBroker = b

		ctx, cancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- b.Run(ctx) }()

		select {
		case sig := <-sigCh:
			cancel()
			b.Close()
			<-runErr

			if sig != syscall.SIGHUP {
				log.WithFields(log.Fields{"signal": sig.String()}).Info("broker shutting down")
				return nil
			}

			log.Info("broker received SIGHUP, rebinding")
			reloaded, err := config.LoadConfig(configFile)
			if err != nil {
				log.WithFields(log.Fields{"error": err}).Error("failed to reload configuration, keeping previous config")
				continue
			}
			cfg = reloaded
			corelog.Initialize(cfg.Logging)

		case err := <-runErr:
			cancel()
			b.Close()
			return err
		}
	}
}
