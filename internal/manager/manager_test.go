package manager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fathomrun/nowcast/core/checklist"
	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/core/message"
	"github.com/fathomrun/nowcast/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInvoker struct {
	result dispatch.Result
	err    error
	calls  int
}

func (s *stubInvoker) Invoke(ctx context.Context, worker string, msg interface{}, cl map[string]interface{}) (dispatch.Result, error) {
	s.calls++
	return s.result, s.err
}

func testRegistry() config.MessageRegistryConfig {
	return config.MessageRegistryConfig{
		Workers: map[string]config.WorkerRegistryEntry{
			"sleep": {
				ChecklistKey: "sleep",
				MessageTypes: map[string]string{
					"success": "slept",
					"failure": "could not sleep",
					"crash":   "worker crashed",
				},
			},
			"awaken": {
				ChecklistKey: "awaken",
				MessageTypes: map[string]string{
					"success": "awakened",
					"need":    "needs a checklist value",
				},
			},
			"clear_checklist": {
				MessageTypes: map[string]string{
					"clear checklist": "checklist cleared",
				},
			},
		},
	}
}

func newTestManager(t *testing.T, inv DispatchInvoker) (*Manager, *checklist.Checklist) {
	t.Helper()
	cl := checklist.New(filepath.Join(t.TempDir(), "checklist.yaml"))
	cfg := &config.NowcastConfig{MessageRegistry: testRegistry()}
	return New("manager", cfg, cl, inv, nil), cl
}

// S1: success chain. A worker reports success, the dispatch hook
// returns the next worker in the chain, and the manager acks and
// returns that successor.
func TestHandleSuccessChainS1(t *testing.T) {
	inv := &stubInvoker{result: dispatch.Result{NextWorkers: []dispatch.NextWorker{dispatch.New("awaken")}}}
	m, _ := newTestManager(t, inv)

	msg := message.New("sleep", "success", map[string]interface{}{"duration": 10})
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyAck, replyMsg.Type)
	assert.Equal(t, []dispatch.NextWorker{dispatch.New("awaken")}, successors)
}

// S2: unknown worker. A message from a source absent from the
// registry is rejected before the dispatch hook is ever invoked.
func TestHandleUnregisteredWorkerS2(t *testing.T) {
	inv := &stubInvoker{}
	m, _ := newTestManager(t, inv)

	msg := message.New("ghost", "success", nil)
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, successors)
	assert.Equal(t, 0, inv.calls)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyUnregisteredWorker, replyMsg.Type)
}

// An unregistered message type from a known worker is also rejected
// before dispatch, distinctly from an unregistered worker.
func TestHandleUnregisteredMessageType(t *testing.T) {
	inv := &stubInvoker{}
	m, _ := newTestManager(t, inv)

	msg := message.New("sleep", "unexpected type", nil)
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, _, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.calls)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyUnregisteredMessageType, replyMsg.Type)
}

// S3: checklist merge. Two successive continue-class messages from
// the same worker each carrying a mapping payload merge into a single
// checklist entry rather than overwriting it.
func TestHandleChecklistMergeS3(t *testing.T) {
	inv := &stubInvoker{}
	m, cl := newTestManager(t, inv)

	first := message.New("sleep", "success", map[string]interface{}{"start": "06:00"})
	raw, err := first.Serialize()
	require.NoError(t, err)
	_, _, err = m.Handle(context.Background(), raw)
	require.NoError(t, err)

	second := message.New("sleep", "success", map[string]interface{}{"end": "07:00"})
	raw, err = second.Serialize()
	require.NoError(t, err)
	_, _, err = m.Handle(context.Background(), raw)
	require.NoError(t, err)

	stored, ok := cl.Get("sleep")
	require.True(t, ok)
	merged, ok := stored.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "06:00", merged["start"])
	assert.Equal(t, "07:00", merged["end"])
}

// S4: need reply. A "need" message returns the requested checklist
// value as the reply payload without touching the dispatch hook.
func TestHandleNeedS4(t *testing.T) {
	inv := &stubInvoker{}
	m, cl := newTestManager(t, inv)
	require.NoError(t, cl.Update("sleep", map[string]interface{}{"start": "06:00"}))

	msg := message.New("awaken", "need", "sleep")
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, successors)
	assert.Equal(t, 0, inv.calls)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyAck, replyMsg.Type)
	payload := message.StringMapPayload(replyMsg.Payload).(map[string]interface{})
	assert.Equal(t, "06:00", payload["start"])
}

// need requires a string payload naming the checklist key.
func TestHandleNeedRejectsNonStringPayload(t *testing.T) {
	m, _ := newTestManager(t, &stubInvoker{})

	msg := message.New("awaken", "need", map[string]interface{}{"bad": true})
	raw, err := msg.Serialize()
	require.NoError(t, err)

	_, _, err = m.Handle(context.Background(), raw)
	assert.Error(t, err)
}

// S6: crash-class continue path. A crash-class message is dispatched
// exactly like any other continue-class message; it is not special
// cased by the manager, and is the dispatch hook's responsibility.
func TestHandleCrashClassS6(t *testing.T) {
	inv := &stubInvoker{result: dispatch.Result{}}
	m, cl := newTestManager(t, inv)

	msg := message.New("sleep", "crash", map[string]interface{}{"reason": "disk full"})
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, successors)
	assert.Equal(t, 1, inv.calls)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyAck, replyMsg.Type)

	stored, ok := cl.Get("sleep")
	require.True(t, ok)
	merged := stored.(map[string]interface{})
	assert.Equal(t, "disk full", merged["reason"])
}

// When the dispatch hook returns ErrNoHandler, the manager replies
// with the fixed "no after_worker function" message and does not
// launch any successors, but the checklist write it already performed
// still stands (invariant 1).
func TestHandleDispatchNoHandler(t *testing.T) {
	inv := &stubInvoker{err: dispatch.ErrNoHandler}
	m, cl := newTestManager(t, inv)

	msg := message.New("sleep", "success", map[string]interface{}{"start": "06:00"})
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, successors)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyNoAfterWorkerFunction, replyMsg.Type)

	_, ok := cl.Get("sleep")
	assert.True(t, ok)
}

// clear checklist always replies "checklist cleared" and leaves an
// empty checklist on disk, even when it was already empty
// (invariant 7).
func TestHandleClearChecklist(t *testing.T) {
	inv := &stubInvoker{}
	m, cl := newTestManager(t, inv)
	require.NoError(t, cl.Update("sleep", map[string]interface{}{"start": "06:00"}))

	msg := message.New("clear_checklist", "clear checklist", nil)
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, successors)

	replyMsg, err := message.Deserialize(reply)
	require.NoError(t, err)
	assert.Equal(t, replyChecklistCleared, replyMsg.Type)

	_, ok := cl.Get("sleep")
	assert.False(t, ok)
}

// A Handle call that processes the message produces exactly one
// serialized reply (invariant 4); this checks the continue-class
// branch. Branches that return an error produce no reply.
func TestHandleProducesExactlyOneReply(t *testing.T) {
	inv := &stubInvoker{result: dispatch.Result{NextWorkers: []dispatch.NextWorker{dispatch.New("awaken")}}}
	m, _ := newTestManager(t, inv)

	msg := message.New("sleep", "success", nil)
	raw, err := msg.Serialize()
	require.NoError(t, err)

	reply, _, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, reply)

	_, err = message.Deserialize(reply)
	require.NoError(t, err)
}

// A barrier installed by one dispatch result is honored by a later
// message from a worker it is waiting on: the successors from that
// later message go into the barrier's ThenLaunch list, and because
// awaken is the only worker the barrier waits on, that same message
// clears the barrier and releases them.
func TestHandleContinueHonorsBarrier(t *testing.T) {
	inv := &stubInvoker{result: dispatch.Result{
		NextWorkers: []dispatch.NextWorker{dispatch.New("downstream")},
		MustFinish:  []string{"awaken"},
	}}
	m, _ := newTestManager(t, inv)

	msg := message.New("sleep", "success", nil)
	raw, err := msg.Serialize()
	require.NoError(t, err)
	_, successors, err := m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []dispatch.NextWorker{dispatch.New("downstream")}, successors)

	inv.result = dispatch.Result{NextWorkers: []dispatch.NextWorker{dispatch.New("final")}}
	msg = message.New("awaken", "success", nil)
	raw, err = msg.Serialize()
	require.NoError(t, err)
	_, successors, err = m.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []dispatch.NextWorker{dispatch.New("final")}, successors)
}
