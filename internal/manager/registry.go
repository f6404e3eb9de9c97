package manager

import (
	"github.com/fathomrun/nowcast/core/config"
)

// gateResult is what checkRegistry reports after checking a message's
// source and type against the message registry: which of the two
// possible gate failures occurred, if either.
type gateResult int

const (
	gateOK gateResult = iota
	gateUnregisteredWorker
	gateUnregisteredMessageType
)

func checkRegistry(reg config.MessageRegistryConfig, source, msgType string) (gateResult, config.WorkerRegistryEntry) {
	entry, ok := reg.Workers[source]
	if !ok {
		return gateUnregisteredWorker, config.WorkerRegistryEntry{}
	}
	if _, ok := entry.MessageTypes[msgType]; !ok {
		return gateUnregisteredMessageType, entry
	}
	return gateOK, entry
}
