package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result is what an after_<worker> dispatch hook produces: the
// successor workers to launch, and optionally the set of worker names
// a race-condition barrier should wait on before releasing a second
// batch of successors (spec.md's tuple-return form). MustFinish is
// nil for the bare-list form.
type Result struct {
	NextWorkers []NextWorker `json:"next_workers"`
	MustFinish  []string     `json:"must_finish,omitempty"`
}

// request is the JSON document written to the dispatch executable's
// stdin for every continue-class message.
type request struct {
	Worker    string                 `json:"worker"`
	Message   interface{}            `json:"message"`
	Checklist map[string]interface{} `json:"checklist"`
}

// ErrNoHandler is returned when the dispatch executable has no
// after_<worker> equivalent for the given worker, mapping to the
// manager's "no after_worker function" reply.
var ErrNoHandler = fmt.Errorf("no after_worker function")

// Invoker runs the dispatch executable named by
// message registry.next workers module. The executable is re-run
// fresh from disk on every call so that replacing the file changes
// dispatch behaviour for the very next message, with no manager
// restart and no checklist loss — this repo's substitute for the
// reference implementation's per-message source re-import.
type Invoker struct {
	Path    string
	Timeout time.Duration
}

// NewInvoker constructs an Invoker for the dispatch executable at
// path.
func NewInvoker(path string) *Invoker {
	return &Invoker{Path: path, Timeout: 10 * time.Second}
}

// Invoke execs the dispatch binary, passing it the worker name, the
// deserialized message and a read-only checklist snapshot, and
// returns the decoded Result. A missing executable, a non-zero exit,
// or malformed JSON output are all reported through ErrNoHandler,
// matching the existing "no after_worker function" reply path.
func (inv *Invoker) Invoke(ctx context.Context, worker string, msg interface{}, checklist map[string]interface{}) (Result, error) {
	if inv.Path == "" {
		return Result{}, ErrNoHandler
	}

	ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	req := request{Worker: worker, Message: msg, Checklist: checklist}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal dispatch request: %w", err)
	}

	cmd := exec.CommandContext(ctx, inv.Path, "after_"+worker)
	cmd.Stdin = bytes.NewReader(reqBody)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.WithFields(log.Fields{
			"worker": worker,
			"path":   inv.Path,
			"error":  err,
			"stderr": stderr.String(),
		}).Error("dispatch executable failed")
		return Result{}, ErrNoHandler
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		log.WithFields(log.Fields{
			"worker": worker,
			"path":   inv.Path,
			"error":  err,
			"stdout": stdout.String(),
		}).Error("dispatch executable produced malformed output")
		return Result{}, ErrNoHandler
	}

	return result, nil
}
