// Command manager runs the message-driven dispatch engine: the
// central process every worker and scheduled job ultimately reports
// to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathomrun/nowcast/core/checklist"
	"github.com/fathomrun/nowcast/core/config"
	corelog "github.com/fathomrun/nowcast/core/log"
	"github.com/fathomrun/nowcast/core/transport"
	"github.com/fathomrun/nowcast/core/util"
	"github.com/fathomrun/nowcast/internal/dispatch"
	"github.com/fathomrun/nowcast/internal/manager"
	"github.com/nelkinda/health-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var ignoreChecklist bool

	cmd := &cobra.Command{
		Use:           "manager config_file",
		Short:         "nowcast manager",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], ignoreChecklist)
		},
	}
	cmd.Flags().BoolVar(&ignoreChecklist, "ignore-checklist", false, "start with an empty checklist, ignoring any on-disk file")

	if err := cmd.Execute(); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("manager exited with error")
		os.Exit(1)
	}
}

func run(configFile string, ignoreChecklist bool) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load manager configuration: %w", err)
	}
	corelog.Initialize(cfg.Logging)

	var cl *checklist.Checklist
	if ignoreChecklist {
		cl = checklist.New(cfg.ChecklistFile)
	} else {
		cl, err = checklist.Load(cfg.ChecklistFile)
		if err != nil {
			return fmt.Errorf("load checklist: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := manager.NewMetrics(reg)

	mux := http.NewServeMux()
	h := health.New(health.Health{Version: "1", ReleaseID: "1.0.0-SNAPSHOT"})
	mux.HandleFunc("/healthz", h.Handler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpPort := util.GetenvInt("NOWCAST_MANAGER_HEALTH_PORT", cfg.HTTP.Port)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{"error": err}).Error("manager health server failed")
		}
	}()
	defer httpSrv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		managerEndpoint := fmt.Sprintf("tcp://%s:%d", cfg.Zmq.Host, cfg.Zmq.Ports.Manager)
		sock, err := transport.NewManagerSocket(managerEndpoint)
		if err != nil {
			return fmt.Errorf("open manager socket: %w", err)
		}

		invoker := dispatch.NewInvoker(cfg.MessageRegistry.NextWorkersModule)
		m := manager.New("manager", cfg, cl, invoker, metrics)
		m.SetRunning()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go messageLoop(ctx, sock, m, cfg, done)

		sig := <-sigCh
		m.SetShuttingDown()
		cancel()
		<-done
		sock.Close()

		if sig != syscall.SIGHUP {
			log.WithFields(log.Fields{"signal": sig.String()}).Info("manager shutting down")
			return nil
		}

		log.Info("manager received SIGHUP, reloading configuration")
		reloaded, err := config.LoadConfig(configFile)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("failed to reload configuration, keeping previous config")
			continue
		}
		cfg = reloaded
		corelog.Initialize(cfg.Logging)
	}
}

func messageLoop(ctx context.Context, sock *transport.ManagerSocket, m *manager.Manager, cfg *config.NowcastConfig, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := sock.Recv(1000)
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.WithFields(log.Fields{"error": err}).Error("manager failed to receive worker message")
			continue
		}

		reply, successors, err := m.Handle(ctx, raw)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("manager failed to handle worker message")
			continue
		}

		if err := sock.Send(reply); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("manager failed to send reply")
		}

		for _, nw := range successors {
			if err := nw.Launch(cfg, "manager"); err != nil {
				log.WithFields(log.Fields{"module": nw.Module, "error": err}).Error("manager failed to launch successor worker")
			}
		}
	}
}
