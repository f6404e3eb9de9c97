// Package manager implements the message-driven dispatch engine: the
// registry gate, the checklist update rule, the out-of-process
// dispatch-hook invocation, and the race-condition barrier.
package manager

import (
	"context"
	"fmt"

	"github.com/fathomrun/nowcast/core/checklist"
	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/core/message"
	"github.com/fathomrun/nowcast/internal/dispatch"
	log "github.com/sirupsen/logrus"
)

// State is one of the manager's three observable lifecycle states.
type State string

const (
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
)

const (
	replyUnregisteredWorker     = "unregistered worker"
	replyUnregisteredMessageType = "unregistered message type"
	replyChecklistCleared       = "checklist cleared"
	replyAck                    = "ack"
	replyNoAfterWorkerFunction  = "no after_worker function"

	typeClearChecklist = "clear checklist"
	typeNeed           = "need"
)

// DispatchInvoker is the subset of *dispatch.Invoker the manager
// depends on, extracted so tests can supply a stub instead of
// exec-ing a real dispatch binary.
type DispatchInvoker interface {
	Invoke(ctx context.Context, worker string, msg interface{}, checklist map[string]interface{}) (dispatch.Result, error)
}

// Manager is the single-threaded message-driven dispatch engine
// described by the component design. It is not safe for concurrent
// use: the message loop that owns it must call Handle to completion
// before accepting the next message.
type Manager struct {
	Name string

	cfg       *config.NowcastConfig
	checklist *checklist.Checklist
	invoker   DispatchInvoker
	slack     *slackClient
	metrics   *Metrics

	barrier *dispatch.Barrier
	state   State
}

// New constructs a Manager. metrics may be nil, in which case counters
// are skipped.
func New(name string, cfg *config.NowcastConfig, cl *checklist.Checklist, invoker DispatchInvoker, metrics *Metrics) *Manager {
	return &Manager{
		Name:      name,
		cfg:       cfg,
		checklist: cl,
		invoker:   invoker,
		slack:     newSlackClient(),
		metrics:   metrics,
		state:     StateStarting,
	}
}

// State reports the manager's current observable lifecycle state.
func (m *Manager) State() State { return m.state }

// SetRunning transitions the manager into the running state once
// startup completes.
func (m *Manager) SetRunning() { m.state = StateRunning }

// SetShuttingDown transitions the manager into the shutting-down
// state when a termination signal arrives.
func (m *Manager) SetShuttingDown() { m.state = StateShuttingDown }

// Handle processes one deserialized worker message to completion:
// gates it against the registry, routes it to the clear-checklist,
// need or continue-class handler, and returns the serialized reply
// together with the successor workers to launch. A non-nil error
// means the message could not be processed at all (e.g. a registry
// configuration defect) and no reply; the message loop logs it and
// continues without sending a reply for that one message.
func (m *Manager) Handle(ctx context.Context, raw []byte) ([]byte, []dispatch.NextWorker, error) {
	msg, err := message.Deserialize(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("deserialize worker message: %w", err)
	}
	msg.Payload = message.StringMapPayload(msg.Payload)

	gate, entry := checkRegistry(m.cfg.MessageRegistry, msg.Source, msg.Type)
	switch gate {
	case gateUnregisteredWorker:
		log.WithFields(log.Fields{"source": msg.Source}).Error("message received from unregistered worker")
		m.count(replyUnregisteredWorker)
		return m.reply(replyUnregisteredWorker, nil), nil, nil
	case gateUnregisteredMessageType:
		log.WithFields(log.Fields{"source": msg.Source, "type": msg.Type}).Error("unregistered message type received from worker")
		m.count(replyUnregisteredMessageType)
		return m.reply(replyUnregisteredMessageType, nil), nil, nil
	}

	switch msg.Type {
	case typeClearChecklist:
		return m.handleClearChecklist()
	case typeNeed:
		return m.handleNeed(msg)
	default:
		return m.handleContinue(ctx, msg, entry)
	}
}

func (m *Manager) handleClearChecklist() ([]byte, []dispatch.NextWorker, error) {
	log.Info("checklist cleared")
	if err := m.checklist.Clear(); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("failed to persist cleared checklist")
	} else {
		m.countChecklistWrite()
	}
	m.count(replyChecklistCleared)
	return m.reply(replyChecklistCleared, nil), nil, nil
}

func (m *Manager) handleNeed(msg message.Message) ([]byte, []dispatch.NextWorker, error) {
	key, ok := msg.Payload.(string)
	if !ok {
		return nil, nil, fmt.Errorf("need message payload must be a string checklist key, got %T", msg.Payload)
	}
	value, _ := m.checklist.Get(key)
	m.count(replyAck)
	return m.reply(replyAck, value), nil, nil
}

func (m *Manager) handleContinue(ctx context.Context, msg message.Message, entry config.WorkerRegistryEntry) ([]byte, []dispatch.NextWorker, error) {
	if msg.Payload != nil {
		if entry.ChecklistKey == "" {
			return nil, nil, fmt.Errorf("worker %q has no checklist key configured but sent a payload", msg.Source)
		}
		if err := m.checklist.Update(entry.ChecklistKey, msg.Payload); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("failed to persist checklist update")
		} else {
			m.countChecklistWrite()
		}
	}

	m.slack.Notify(m.cfg.SlackNotifications, msg)

	result, err := m.invoker.Invoke(ctx, msg.Source, msg, m.checklist.Snapshot())
	if err != nil {
		log.WithFields(log.Fields{"source": msg.Source, "error": err}).Error("could not find dispatch handler for worker")
		m.count(replyNoAfterWorkerFunction)
		if m.metrics != nil {
			m.metrics.DispatchErrors.Inc()
		}
		return m.reply(replyNoAfterWorkerFunction, nil), nil, nil
	}

	if result.MustFinish != nil {
		m.barrier = dispatch.Install(result.MustFinish)
		log.WithFields(log.Fields{"must_finish": result.MustFinish}).Debug("race condition management activated")
		if m.metrics != nil {
			m.metrics.BarrierInstalls.Inc()
		}
	}

	successors, newBarrier := m.barrier.Apply(msg.Source, result.NextWorkers)
	m.barrier = newBarrier

	m.count(replyAck)
	return m.reply(replyAck, nil), successors, nil
}

func (m *Manager) reply(replyType string, payload interface{}) []byte {
	reply := message.New(m.Name, replyType, payload)
	data, err := reply.Serialize()
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("failed to serialize manager reply")
		return nil
	}
	return data
}

func (m *Manager) count(replyType string) {
	if m.metrics != nil {
		m.metrics.MessagesHandled.WithLabelValues(replyType).Inc()
	}
}

func (m *Manager) countChecklistWrite() {
	if m.metrics != nil {
		m.metrics.ChecklistWrites.Inc()
	}
}
