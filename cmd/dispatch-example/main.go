// Command dispatch-example is the default out-of-process dispatch
// program: it reads a single JSON request from stdin, looks up the
// after_<worker> rule named by its one positional argument, and
// writes the JSON result to stdout. The manager execs this binary
// fresh for every continue-class message, so replacing it on disk
// changes dispatch behaviour for the next message without a manager
// restart.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fathomrun/nowcast/core/message"
	"github.com/fathomrun/nowcast/internal/dispatch"
)

type request struct {
	Worker    string                 `json:"worker"`
	Message   message.Message        `json:"message"`
	Checklist map[string]interface{} `json:"checklist"`
}

type rule func(req request) dispatch.Result

var rules = map[string]rule{
	"after_sleep":  afterSleep,
	"after_awaken": afterAwaken,
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: dispatch-example after_<worker>")
		os.Exit(1)
	}

	handler, ok := rules[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "no handler named %q\n", os.Args[1])
		os.Exit(1)
	}

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read request: %v\n", err)
		os.Exit(1)
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		fmt.Fprintf(os.Stderr, "parse request: %v\n", err)
		os.Exit(1)
	}

	result := handler(req)

	out, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal result: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

// afterSleep chains straight into the awaken example worker on
// success; a crashed or failed sleep launches nothing further.
func afterSleep(req request) dispatch.Result {
	if req.Message.Type == "success" {
		return dispatch.Result{NextWorkers: []dispatch.NextWorker{dispatch.New("awaken")}}
	}
	return dispatch.Result{NextWorkers: []dispatch.NextWorker{}}
}

// afterAwaken is a dead end in every case: it only demonstrates being
// launched, not launching anything itself.
func afterAwaken(req request) dispatch.Result {
	return dispatch.Result{NextWorkers: []dispatch.NextWorker{}}
}
