package transport

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// WorkerSocket is the request-side connection a worker harness uses
// to talk to the broker's workers endpoint. It behaves like a REQ
// socket: one Send must be followed by exactly one Recv before the
// next Send. Unlike the teacher's MDP worker, there is no async
// HEARTBEAT command on the wire here (plain REQ/REP has no frame for
// one), so liveness is tracked against Recv's own poll: each silent
// poll of HeartbeatInterval costs one unit of liveness, and once
// HeartbeatLiveness units are spent the socket reconnects, the same liveness/reconnect
// threshold core/mdp/worker.go applies to its DEALER socket.
type WorkerSocket struct {
	broker   string
	sock     *czmq.Sock
	poller   *czmq.Poller
	timeout  time.Duration
	liveness int
}

// NewWorkerSocket connects a new WorkerSocket to broker.
func NewWorkerSocket(broker string, timeout time.Duration) (*WorkerSocket, error) {
	sock, poller, err := dialWorkerSocket(broker)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"broker": broker}).Info("worker connected to broker")

	return &WorkerSocket{broker: broker, sock: sock, poller: poller, timeout: timeout, liveness: HeartbeatLiveness}, nil
}

func dialWorkerSocket(broker string) (*czmq.Sock, *czmq.Poller, error) {
	sock, err := czmq.NewReq(broker)
	if err != nil {
		return nil, nil, fmt.Errorf("create request socket: %w", err)
	}
	if err := sock.Connect(broker); err != nil {
		sock.Destroy()
		return nil, nil, fmt.Errorf("connect request socket to %s: %w", broker, err)
	}

	_ = sock.SetTcpKeepalive(1)
	_ = sock.SetTcpKeepaliveIdle(int(WorkerKeepaliveIdle.Seconds()))

	poller, err := czmq.NewPoller()
	if err != nil {
		sock.Destroy()
		return nil, nil, fmt.Errorf("create poller: %w", err)
	}
	if err := poller.Add(sock); err != nil {
		poller.Destroy()
		sock.Destroy()
		return nil, nil, fmt.Errorf("add request socket to poller: %w", err)
	}

	return sock, poller, nil
}

// reconnect tears down and recreates the request socket and poller,
// mirroring core/mdp/worker.go's ConnectToBroker, and resets liveness.
func (w *WorkerSocket) reconnect() error {
	if w.poller != nil {
		w.poller.Destroy()
	}
	if w.sock != nil {
		w.sock.Destroy()
	}

	sock, poller, err := dialWorkerSocket(w.broker)
	if err != nil {
		w.sock = nil
		w.poller = nil
		return err
	}

	w.sock = sock
	w.poller = poller
	w.liveness = HeartbeatLiveness
	log.WithFields(log.Fields{"broker": w.broker}).Info("worker socket reconnected to broker")
	return nil
}

// Send transmits a single-frame request.
func (w *WorkerSocket) Send(data []byte) error {
	if err := w.sock.SendMessage([][]byte{data}); err != nil {
		return fmt.Errorf("send to broker: %w", err)
	}
	return nil
}

// ErrRecvTimeout is returned by Recv when no reply arrives within the
// worker socket's configured timeout.
var ErrRecvTimeout = fmt.Errorf("timed out waiting for manager reply")

// Recv blocks for a reply up to the socket's configured timeout,
// polling in HeartbeatInterval-sized slices so a dead broker
// connection is detected and reconnected well before the full timeout
// elapses, rather than only at the end of it.
func (w *WorkerSocket) Recv() ([]byte, error) {
	deadline := time.Now().Add(w.timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrRecvTimeout
		}
		wait := HeartbeatInterval
		if wait > remaining {
			wait = remaining
		}

		sock, err := w.poller.Wait(int(wait / time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("poller wait: %w", err)
		}
		if sock == nil {
			w.liveness--
			log.WithFields(log.Fields{"liveness": w.liveness}).Trace("no reply within heartbeat interval")
			if w.liveness <= 0 {
				log.WithFields(log.Fields{"broker": w.broker}).Warn("worker socket liveness exhausted, reconnecting")
				if err := w.reconnect(); err != nil {
					return nil, fmt.Errorf("reconnect after liveness exhausted: %w", err)
				}
				return nil, ErrRecvTimeout
			}
			continue
		}

		frames, err := w.sock.RecvMessage()
		if err != nil {
			return nil, fmt.Errorf("recv reply: %w", err)
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("empty reply from manager")
		}
		w.liveness = HeartbeatLiveness
		return frames[len(frames)-1], nil
	}
}

// Close destroys the underlying socket and poller.
func (w *WorkerSocket) Close() {
	if w.poller != nil {
		w.poller.Destroy()
		w.poller = nil
	}
	if w.sock != nil {
		w.sock.Destroy()
		w.sock = nil
	}
}
