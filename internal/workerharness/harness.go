// Package workerharness is the runtime every worker binary embeds: a
// CLI parser, a config loader, a signal-driven lifecycle, and the
// tell_manager request/reply contract against the broker's workers
// endpoint.
package workerharness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathomrun/nowcast/core/config"
	corelog "github.com/fathomrun/nowcast/core/log"
	"github.com/fathomrun/nowcast/core/message"
	"github.com/fathomrun/nowcast/core/nowcast"
	"github.com/fathomrun/nowcast/core/transport"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// WorkerArgs is the parsed command line a worker function receives:
// the required config file positional argument, the --debug flag,
// and any extra flags the worker registered with AddArgument.
type WorkerArgs struct {
	ConfigFile string
	Debug      bool
	Extra      map[string]string
}

// TellManagerFunc sends a message to the manager and blocks for its
// reply. In debug mode it logs the would-be message and returns nil
// without performing any I/O.
type TellManagerFunc func(msgType string, payload interface{}) (interface{}, error)

// WorkerFunc is a worker's business logic. Its return value is the
// checklist delta to report to the manager on success.
type WorkerFunc func(args *WorkerArgs, cfg *config.NowcastConfig, tell TellManagerFunc) (interface{}, error)

// MsgTypeFn maps a completed run's arguments to the message type the
// harness should report to the manager.
type MsgTypeFn func(args *WorkerArgs) string

// Harness wraps a cobra command with the worker lifecycle. Construct
// one with New, optionally call AddArgument, then Run.
type Harness struct {
	Name string

	cmd   *cobra.Command
	debug bool
	extra map[string]*string
}

// New builds a Harness for a worker named name, whose CLI requires a
// positional config_file argument plus the standard --debug flag.
func New(name string) *Harness {
	h := &Harness{Name: name, extra: map[string]*string{}}
	h.cmd = &cobra.Command{
		Use:           fmt.Sprintf("%s config_file", name),
		Short:         fmt.Sprintf("%s nowcast worker", name),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	h.cmd.Flags().BoolVar(&h.debug, "debug", false, "suppress manager communication and log to the console")
	return h
}

// AddArgument registers an extra string flag, retrievable from
// WorkerArgs.Extra[name] inside the worker function.
func (h *Harness) AddArgument(name, defaultValue, usage string) {
	h.extra[name] = h.cmd.Flags().String(name, defaultValue, usage)
}

// Run parses os.Args, loads configuration, configures logging,
// installs signal handlers, opens the worker's transport socket
// (unless --debug), and executes workerFunc to completion, reporting
// its outcome to the manager via successFn/failureFn. It returns
// whatever error the lifecycle or workerFunc produced, except for a
// signal-driven normal termination which is reported as nil.
func (h *Harness) Run(workerFunc WorkerFunc, successFn, failureFn MsgTypeFn) error {
	h.cmd.RunE = func(cmd *cobra.Command, posArgs []string) error {
		return h.run(posArgs[0], workerFunc, successFn, failureFn)
	}
	return h.cmd.Execute()
}

func (h *Harness) run(configFile string, workerFunc WorkerFunc, successFn, failureFn MsgTypeFn) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nowcast.NewConfigError("failed to load worker configuration", err)
	}

	logCfg := cfg.Logging
	if h.debug {
		logCfg.Loki = config.LokiConfig{}
	}
	corelog.Initialize(logCfg)
	if h.debug {
		log.SetOutput(os.Stdout)
		log.WithFields(log.Fields{"worker": h.Name}).Info("running in debug mode: no manager communication")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sock *transport.WorkerSocket
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		log.WithFields(log.Fields{"signal": sig.String()}).Info("worker received termination signal")
		cancel()
		if sock != nil {
			sock.Close()
		}
	}()

	if !h.debug {
		timeout := time.Duration(cfg.Zmq.WorkerReplyTimeout) * time.Second
		if timeout <= 0 {
			timeout = time.Duration(config.WorkerReplyTimeout) * time.Second
		}
		endpoint := fmt.Sprintf("tcp://%s:%d", cfg.Zmq.Host, cfg.Zmq.Ports.Workers)
		s, err := transport.NewWorkerSocket(endpoint, timeout)
		if err != nil {
			return nowcast.NewTransportError("failed to connect to broker", err)
		}
		sock = s
		defer sock.Close()
	}

	extra := make(map[string]string, len(h.extra))
	for name, val := range h.extra {
		extra[name] = *val
	}
	args := &WorkerArgs{ConfigFile: configFile, Debug: h.debug, Extra: extra}
	tell := h.tellManagerFunc(ctx, cfg, sock)

	delta, err := workerFunc(args, cfg, tell)
	switch {
	case err == nil:
		_, sendErr := tell(successFn(args), delta)
		return sendErr

	case errors.Is(err, nowcast.ErrNormalTermination) || ctx.Err() != nil:
		return nil

	case nowcast.IsWorkerError(err):
		var we *nowcast.WorkerError
		errors.As(err, &we)
		msgType := we.MsgType
		if msgType == "" {
			msgType = failureFn(args)
		}
		_, sendErr := tell(msgType, nil)
		if sendErr != nil {
			return sendErr
		}
		return err

	default:
		log.WithFields(log.Fields{"worker": h.Name, "error": err}).Error("worker crashed")
		_, _ = tell("crash", nil)
		return err
	}
}

// tellManagerFunc returns the TellManagerFunc closure a worker
// function uses to talk to the manager, enforcing the registry
// validation contract described in the worker runtime's public
// surface.
func (h *Harness) tellManagerFunc(ctx context.Context, cfg *config.NowcastConfig, sock *transport.WorkerSocket) TellManagerFunc {
	return func(msgType string, payload interface{}) (interface{}, error) {
		entry, ok := cfg.MessageRegistry.Workers[h.Name]
		if !ok {
			return nil, nowcast.NewWorkerError(fmt.Errorf("worker %q is not present in the message registry", h.Name))
		}
		if _, ok := entry.MessageTypes[msgType]; !ok {
			return nil, nowcast.NewWorkerError(fmt.Errorf("message type %q is not declared for worker %q", msgType, h.Name))
		}

		if h.debug {
			log.WithFields(log.Fields{"worker": h.Name, "type": msgType, "payload": payload}).Info("debug mode: would send message to manager")
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, nowcast.ErrNormalTermination
		}

		msg := message.New(h.Name, msgType, payload)
		raw, err := msg.Serialize()
		if err != nil {
			return nil, nowcast.NewWorkerError(fmt.Errorf("serialize message to manager: %w", err))
		}
		if err := sock.Send(raw); err != nil {
			return nil, nowcast.NewWorkerError(fmt.Errorf("send message to manager: %w", err))
		}

		replyRaw, err := sock.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				return nil, nowcast.NewTimeoutWorkerError(err)
			}
			return nil, nowcast.NewWorkerError(fmt.Errorf("receive manager reply: %w", err))
		}

		reply, err := message.Deserialize(replyRaw)
		if err != nil {
			return nil, nowcast.NewWorkerError(fmt.Errorf("deserialize manager reply: %w", err))
		}
		if _, ok := cfg.MessageRegistry.Manager[reply.Type]; !ok {
			return nil, nowcast.NewWorkerError(fmt.Errorf("manager replied with unrecognized type %q", reply.Type))
		}

		return message.StringMapPayload(reply.Payload), nil
	}
}
