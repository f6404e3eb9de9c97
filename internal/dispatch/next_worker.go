// Package dispatch implements the NextWorker launch primitive, the
// race-condition barrier, and the out-of-process dispatch-hook
// protocol the manager uses in place of the reference's per-message
// source re-import.
package dispatch

import (
	"fmt"
	"os/exec"

	"github.com/fathomrun/nowcast/core/config"
	log "github.com/sirupsen/logrus"
)

// NextWorker is a declared intent to launch a worker subprocess with
// specific arguments on a specific host.
type NextWorker struct {
	Module string   `json:"module"`
	Args   []string `json:"args"`
	Host   string   `json:"host"`
}

// New constructs a NextWorker destined for localhost.
func New(module string, args ...string) NextWorker {
	return NextWorker{Module: module, Args: args, Host: "localhost"}
}

// NewRemote constructs a NextWorker destined for a named
// run.enabled hosts entry.
func NewRemote(module, host string, args ...string) NextWorker {
	return NextWorker{Module: module, Args: args, Host: host}
}

// buildCommand constructs the (not yet started) subprocess command for
// nw without touching the process table, so Launch's argument
// construction can be exercised by tests independent of exec.Cmd.Start.
func (nw NextWorker) buildCommand(cfg *config.NowcastConfig) (*exec.Cmd, error) {
	if nw.Host == "" || nw.Host == "localhost" {
		args := append([]string{"-m", nw.Module, cfg.ConfigFile}, nw.Args...)
		return exec.Command(cfg.Python, args...), nil
	}

	host, ok := cfg.Run.EnabledHosts[nw.Host]
	if !ok {
		return nil, fmt.Errorf("launch %s: host %q not present in run.enabled hosts", nw.Module, nw.Host)
	}
	args := []string{host.SSHHost, "source", host.EnvvarsFile, ";",
		host.Python, "-m", nw.Module, host.ConfigFile}
	args = append(args, nw.Args...)
	return exec.Command("ssh", args...), nil
}

// Launch spawns nw as a detached subprocess and does not wait for it
// to complete. loggerName identifies the caller (manager or
// scheduler) in log fields. Errors from the spawn attempt itself are
// returned; no synchronization with the child occurs beyond that.
func (nw NextWorker) Launch(cfg *config.NowcastConfig, loggerName string) error {
	cmd, err := nw.buildCommand(cfg)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"logger": loggerName,
		"module": nw.Module,
		"host":   nw.Host,
		"args":   nw.Args,
	}).Info("launching worker")

	if err := cmd.Start(); err != nil {
		log.WithFields(log.Fields{
			"logger": loggerName,
			"module": nw.Module,
			"host":   nw.Host,
			"error":  err,
		}).Error("failed to launch worker")
		return fmt.Errorf("launch %s on %s: %w", nw.Module, nw.Host, err)
	}

	// Detached: the manager/scheduler never waits on the child.
	go func() { _ = cmd.Wait() }()

	return nil
}
