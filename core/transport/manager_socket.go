package transport

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// ManagerSocket is the reply-side connection the manager uses to talk
// to the broker's manager endpoint. It behaves like a REP socket:
// Recv waits for the next request up to a poll interval so the
// message loop can observe context cancellation between requests, and
// the following Send completes that request's reply envelope
// automatically.
type ManagerSocket struct {
	endpoint string
	sock     *czmq.Sock
	poller   *czmq.Poller
}

// NewManagerSocket connects a new ManagerSocket to the broker's
// manager endpoint. The leading ">" forces connect semantics rather
// than the bind-by-default a bare REP socket would otherwise pick.
func NewManagerSocket(endpoint string) (*ManagerSocket, error) {
	sock, err := czmq.NewRep(">" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect manager socket to %s: %w", endpoint, err)
	}

	poller, err := czmq.NewPoller()
	if err != nil {
		sock.Destroy()
		return nil, fmt.Errorf("create poller: %w", err)
	}
	if err := poller.Add(sock); err != nil {
		poller.Destroy()
		sock.Destroy()
		return nil, fmt.Errorf("add manager socket to poller: %w", err)
	}

	log.WithFields(log.Fields{"broker": endpoint}).Info("manager connected to broker")

	return &ManagerSocket{endpoint: endpoint, sock: sock, poller: poller}, nil
}

// ErrRecvTimeout is returned by Recv when no request arrived within
// the poll interval.
var ErrRecvTimeout = fmt.Errorf("timed out waiting for worker request")

// Recv waits up to pollMs milliseconds for the next worker request.
func (m *ManagerSocket) Recv(pollMs int) ([]byte, error) {
	sock, err := m.poller.Wait(pollMs)
	if err != nil {
		return nil, fmt.Errorf("poller wait: %w", err)
	}
	if sock == nil {
		return nil, ErrRecvTimeout
	}

	frames, err := m.sock.RecvMessage()
	if err != nil {
		return nil, fmt.Errorf("recv request: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("empty request")
	}
	return frames[len(frames)-1], nil
}

// Send replies to the request most recently returned by Recv.
func (m *ManagerSocket) Send(data []byte) error {
	if err := m.sock.SendMessage([][]byte{data}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Close destroys the underlying socket and poller.
func (m *ManagerSocket) Close() {
	if m.poller != nil {
		m.poller.Destroy()
		m.poller = nil
	}
	if m.sock != nil {
		m.sock.Destroy()
		m.sock = nil
	}
}
