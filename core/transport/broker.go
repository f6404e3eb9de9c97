package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Broker is the stateless fan-in router described by the broker
// component: a workers-facing ROUTER endpoint that many workers
// connect request sockets to, and a manager-facing DEALER endpoint
// that the single manager process connects its reply socket to.
// Every frame received on one socket is forwarded verbatim to the
// other, preserving the ROUTER-assigned envelope so replies route
// back to the originating worker.
type Broker struct {
	workersEndpoint string
	managerEndpoint string

	workersSocket *czmq.Sock
	managerSocket *czmq.Sock
	poller        *czmq.Poller

	Forwarded uint64
	Errors    uint64
}

// NewBroker constructs a Broker bound to the given endpoints.
// Endpoints are bare tcp://host:port strings; Bind applies the
// bind/connect prefix each underlying socket needs.
func NewBroker(workersEndpoint, managerEndpoint string) *Broker {
	return &Broker{
		workersEndpoint: workersEndpoint,
		managerEndpoint: managerEndpoint,
	}
}

// Bind creates and binds both sockets and the poller that watches
// them.
func (b *Broker) Bind() error {
	var err error

	b.workersSocket, err = czmq.NewRouter(b.workersEndpoint)
	if err != nil {
		return fmt.Errorf("bind workers endpoint %s: %w", b.workersEndpoint, err)
	}

	b.managerSocket, err = czmq.NewDealer("@" + b.managerEndpoint)
	if err != nil {
		return fmt.Errorf("bind manager endpoint %s: %w", b.managerEndpoint, err)
	}

	b.poller, err = czmq.NewPoller()
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}
	if err := b.poller.Add(b.workersSocket); err != nil {
		return fmt.Errorf("add workers socket to poller: %w", err)
	}
	if err := b.poller.Add(b.managerSocket); err != nil {
		return fmt.Errorf("add manager socket to poller: %w", err)
	}

	log.WithFields(log.Fields{
		"workers": b.workersEndpoint,
		"manager": b.managerEndpoint,
	}).Info("broker bound")

	return nil
}

// Run forwards frames between the two endpoints until ctx is
// cancelled or a transport error occurs. Transport errors are fatal
// to the broker process per the failure semantics in the spec: the
// broker holds no message state, so a restart loses nothing beyond
// requests in flight at the instant of death.
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sock, err := b.poller.Wait(1000)
		if err != nil {
			b.Errors++
			return fmt.Errorf("poller wait: %w", err)
		}
		if sock == nil {
			continue
		}

		switch sock {
		case b.workersSocket:
			if err := b.forward(b.workersSocket, b.managerSocket, "worker"); err != nil {
				return err
			}
		case b.managerSocket:
			if err := b.forward(b.managerSocket, b.workersSocket, "manager"); err != nil {
				return err
			}
		}
	}
}

func (b *Broker) forward(from, to *czmq.Sock, direction string) error {
	frames, err := from.RecvMessage()
	if err != nil {
		b.Errors++
		return fmt.Errorf("recv from %s socket: %w", direction, err)
	}

	correlationID := uuid.NewString()
	if err := to.SendMessage(frames); err != nil {
		b.Errors++
		log.WithFields(log.Fields{
			"direction":      direction,
			"correlation_id": correlationID,
			"error":          err,
		}).Error("failed to forward frame")
		return fmt.Errorf("forward %s frame: %w", direction, err)
	}

	b.Forwarded++
	log.WithFields(log.Fields{
		"direction":      direction,
		"correlation_id": correlationID,
	}).Trace("forwarded frame")

	return nil
}

// Close unbinds and destroys both sockets and the poller.
func (b *Broker) Close() {
	if b.poller != nil {
		b.poller.Destroy()
		b.poller = nil
	}
	if b.workersSocket != nil {
		_ = b.workersSocket.Unbind(b.workersEndpoint)
		b.workersSocket.Destroy()
		b.workersSocket = nil
	}
	if b.managerSocket != nil {
		_ = b.managerSocket.Unbind(b.managerEndpoint)
		b.managerSocket.Destroy()
		b.managerSocket = nil
	}
}
