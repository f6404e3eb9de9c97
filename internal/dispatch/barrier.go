package dispatch

// Barrier is the transient manager state installed when a dispatch
// hook returns a tuple (list<NextWorker>, set<worker_name>) instead
// of a bare list. While MustFinish is non-empty, any dispatch result
// whose source is in MustFinish is diverted into ThenLaunch instead
// of being returned to the caller. When MustFinish becomes empty,
// ThenLaunch is released and the barrier clears.
type Barrier struct {
	MustFinish map[string]struct{}
	ThenLaunch []NextWorker
}

// Active reports whether a barrier is currently installed.
func (b *Barrier) Active() bool {
	return b != nil && b.MustFinish != nil
}

// Install records a new barrier from a hook's (list, set) return.
func Install(mustFinish []string) *Barrier {
	set := make(map[string]struct{}, len(mustFinish))
	for _, name := range mustFinish {
		set[name] = struct{}{}
	}
	return &Barrier{MustFinish: set, ThenLaunch: nil}
}

// Apply runs the per-message finalization step of the barrier
// protocol against a message from source carrying the successors the
// dispatch hook just computed for that message. It returns the
// successor list that should actually be launched for this message,
// and the barrier's new state (nil once the barrier clears).
//
// If no barrier is active, successors pass through unchanged.
// Otherwise: if source is in MustFinish, it is removed and successors
// are appended to ThenLaunch rather than returned (the caller gets an
// empty list for this message). Once MustFinish is empty, ThenLaunch
// is released as the returned successor list and the barrier clears.
func (b *Barrier) Apply(source string, successors []NextWorker) ([]NextWorker, *Barrier) {
	if !b.Active() {
		return successors, b
	}

	if _, waiting := b.MustFinish[source]; waiting {
		delete(b.MustFinish, source)
		b.ThenLaunch = append(b.ThenLaunch, successors...)
		successors = nil
	}

	if len(b.MustFinish) == 0 {
		released := b.ThenLaunch
		return append(successors, released...), nil
	}

	return successors, b
}
