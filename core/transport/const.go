// Package transport implements the ROUTER/DEALER fan-in broker and
// the worker/manager sockets that speak through it, adapted from the
// teacher's Majordomo Protocol implementation but simplified to plain
// frame-forwarding: there is exactly one manager behind the broker, so
// no service map, worker pool or MMI namespace is needed.
package transport

import "time"

const (
	// HeartbeatInterval matches the teacher's MDP tuning; kept on the
	// worker socket's poller to distinguish a slow manager from a dead
	// broker connection.
	HeartbeatInterval = 2500 * time.Millisecond

	// HeartbeatLiveness is the number of missed heartbeat cycles
	// before a worker socket reconnects.
	HeartbeatLiveness = 3

	// WorkerKeepaliveIdle is the TCP keepalive idle time applied to
	// worker sockets so long-running computations survive idle
	// middleboxes, per the external interfaces requirement that it be
	// "on the order of 15 minutes".
	WorkerKeepaliveIdle = 15 * time.Minute
)
