// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/kernel"
	"grimm.is/usbwall/internal/metrics"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
	"grimm.is/usbwall/internal/state"
	"grimm.is/usbwall/internal/testutil"
	"grimm.is/usbwall/internal/transport"
)

func openStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// start runs a over tr until the test ends.
func start(t *testing.T, tr transport.Transport, store *state.Store) *Agent {
	t.Helper()
	a := New(tr, Options{
		AckTimeout:   2 * time.Second,
		PollInterval: time.Millisecond,
		Logger:       testutil.Logger(t),
		Store:        store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		tr.Close()
	})
	return a
}

func withPeer(t *testing.T) (*Agent, *kernel.SimPeer) {
	t.Helper()
	peer := kernel.NewSimPeer(testutil.Logger(t))
	return start(t, peer, openStore(t)), peer
}

func blockdev(t *testing.T, action rule.Action) rule.Rule {
	t.Helper()
	r, err := rule.New(action, "blockdev", rule.Criteria{
		Device: rule.DeviceCriterion{Valid: true, Device: rule.Device{BusNum: 1, DevNum: 5}},
	})
	require.NoError(t, err)
	return r
}

func TestAgent_Init(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()

	require.NoError(t, a.Init(ctx))
	assert.NotEmpty(t, a.Status().Session)
	assert.Equal(t, 1, peer.State().Sessions)
	assert.False(t, a.Status().LastAck.IsZero())
}

func TestAgent_AddDumpDelete(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()

	r := blockdev(t, rule.Drop)
	require.NoError(t, a.Add(ctx, r))
	assert.Len(t, peer.Policies(), 1)

	dumped, err := a.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, dumped, 1)
	assert.True(t, r.Equal(dumped[0].(rule.Rule)))

	stored, err := a.Policies()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, a.Status().StoredRules)

	require.NoError(t, a.Delete(ctx, rule.Ref("blockdev")))
	assert.Empty(t, peer.Policies())
	stored, err = a.Policies()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAgent_DuplicateAddRejected(t *testing.T) {
	a, _ := withPeer(t)
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, blockdev(t, rule.Drop)))
	err := a.Add(ctx, blockdev(t, rule.Drop))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, errors.KindRejected, errors.GetKind(err))
	assert.Equal(t, "blockdev", errors.GetAttributes(err)["rule"])
}

func TestAgent_InvalidRuleNeverSent(t *testing.T) {
	peer := kernel.NewSimPeer(testutil.Logger(t))
	m := metrics.New()
	a := New(peer, Options{Logger: testutil.Logger(t), Metrics: m})
	defer peer.Close()

	err := a.Add(context.Background(), rule.Rule{Action: rule.Drop, Name: "empty"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rule.ErrInvalidRule))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.FramesSent.WithLabelValues("ADD")))
}

func TestAgent_DumpLargerThanQueue(t *testing.T) {
	a, _ := withPeer(t)
	ctx := context.Background()

	const n = 3 * nlm.QueueCapacity
	for i := 0; i < n; i++ {
		sr, err := rule.NewPGIDRule(rule.Allow, fmt.Sprintf("group-%d", i), int32(i+1))
		require.NoError(t, err)
		require.NoError(t, a.Add(ctx, sr))
	}

	dumped, err := a.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, dumped, n)
	for i, p := range dumped {
		assert.Equal(t, fmt.Sprintf("group-%d", i), p.PolicyName())
	}

	synced, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, synced, n)
}

func TestAgent_SwitchesAndBehavior(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()
	unmatched := rule.Event{Device: rule.Device{BusNum: 9}}

	require.NoError(t, a.ChangeBehavior(ctx, rule.Drop))
	assert.Equal(t, rule.Drop, peer.Check(unmatched))
	assert.Equal(t, "drop", a.Status().Behavior)

	require.NoError(t, a.Disable(ctx))
	assert.Equal(t, rule.Allow, peer.Check(unmatched))
	require.NotNil(t, a.Status().Enabled)
	assert.False(t, *a.Status().Enabled)

	require.NoError(t, a.Enable(ctx))
	assert.Equal(t, rule.Drop, peer.Check(unmatched))
	assert.True(t, *a.Status().Enabled)

	err := a.ChangeBehavior(ctx, rule.Action(5))
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestAgent_Apply(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, blockdev(t, rule.Drop)))

	udev, err := rule.NewCommRule(rule.Allow, "udev", "systemd-udevd")
	require.NoError(t, err)
	require.NoError(t, a.Apply(ctx, []rule.Policy{blockdev(t, rule.Allow), udev}))

	installed := peer.Policies()
	require.Len(t, installed, 2)
	assert.Equal(t, rule.Allow, installed[0].PolicyAction())
	assert.Equal(t, "udev", installed[1].PolicyName())
}

func TestAgent_ReconcileAfterReload(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := start(t, kernel.NewSimPeer(testutil.Logger(t)), store)
	require.NoError(t, first.Add(ctx, blockdev(t, rule.Drop)))
	require.NoError(t, first.ChangeBehavior(ctx, rule.Drop))

	// A reloaded module starts empty.
	peer := kernel.NewSimPeer(testutil.Logger(t))
	second := start(t, peer, store)

	rep, err := second.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rule/blockdev"}, rep.Pushed)
	assert.Contains(t, rep.Diff, "-rule/blockdev")
	assert.Len(t, peer.Policies(), 1)

	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, rule.Drop, peer.State().Behavior)

	rep, err = second.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Pushed)
	assert.Empty(t, rep.Diff)
}

func TestAgent_ReconcileNeedsStore(t *testing.T) {
	a := start(t, kernel.NewSimPeer(testutil.Logger(t)), nil)
	_, err := a.Reconcile(context.Background())
	assert.True(t, errors.Is(err, ErrNoStore))
}

// scripted answers every Send with a fixed list of frames.
type scripted struct {
	mu      sync.Mutex
	replies [][]byte
	recv    chan []byte
	done    chan struct{}
	once    sync.Once
}

func newScripted(replies ...[]byte) *scripted {
	return &scripted{replies: replies, recv: make(chan []byte, 16), done: make(chan struct{})}
}

func (s *scripted) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.replies {
		s.recv <- r
	}
	return nil
}

func (s *scripted) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-s.recv:
		return f, nil
	case <-s.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scripted) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func TestAgent_AckTimeout(t *testing.T) {
	tr := newScripted()
	a := New(tr, Options{AckTimeout: 20 * time.Millisecond, PollInterval: time.Millisecond, Logger: testutil.Logger(t)})
	defer tr.Close()

	err := a.Enable(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAckTimeout))
	assert.Equal(t, errors.KindTimeout, errors.GetKind(err))
}

func TestAgent_SkipsUndecodableFrames(t *testing.T) {
	m := metrics.New()
	tr := newScripted([]byte("garbage"), nlm.Encode(nlm.NewAck(nlm.ResultSuccess)))
	a := New(tr, Options{PollInterval: time.Millisecond, Logger: testutil.Logger(t), Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	defer tr.Close()

	require.NoError(t, a.Enable(ctx))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.DecodeErrors.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Acks.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FramesSent.WithLabelValues("ENA")))
}

func TestAgent_FailureAck(t *testing.T) {
	tr := newScripted(nlm.Encode(nlm.NewAck(nlm.ResultFailure)))
	a := start(t, tr, nil)

	err := a.Disable(context.Background())
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Nil(t, a.Status().Enabled)
}

func TestAgent_DumpEndsOnLastWithStalePayload(t *testing.T) {
	r := blockdev(t, rule.Drop)
	tr := newScripted(
		nlm.Encode(nlm.Envelope{Opcode: nlm.OpAck, Result: nlm.ResultSuccess, Payload: r}),
		nlm.Encode(nlm.Envelope{Opcode: nlm.OpAck, Result: nlm.ResultLast, Payload: r}),
	)
	a := start(t, tr, nil)

	got, err := a.Dump(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "blockdev", got[0].PolicyName())
}

func TestAgent_DumpEndsOnLastWithSimpleDiscriminant(t *testing.T) {
	last := nlm.Encode(nlm.NewAck(nlm.ResultLast))
	binary.NativeEndian.PutUint32(last[4:], uint32(nlm.TypeSimpleRule))
	a := start(t, newScripted(last), nil)

	got, err := a.Dump(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAgent_DumpFailureWithPayload(t *testing.T) {
	tr := newScripted(nlm.Encode(nlm.Envelope{Opcode: nlm.OpAck, Result: nlm.ResultFailure, Payload: blockdev(t, rule.Drop)}))
	a := start(t, tr, nil)

	_, err := a.Dump(context.Background())
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestAgent_AddPointerPayload(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()

	sr, err := rule.NewCommRule(rule.Allow, "udev", "systemd-udevd")
	require.NoError(t, err)
	require.NoError(t, a.Add(ctx, &sr))

	installed := peer.Policies()
	require.Len(t, installed, 1)
	assert.Equal(t, sr, installed[0])

	stored, err := a.Policies()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, sr, stored[0])

	var missing *rule.Rule
	err = a.Add(ctx, missing)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestAgent_ApplyRestoresReplacedRule(t *testing.T) {
	a, peer := withPeer(t)
	ctx := context.Background()

	old := blockdev(t, rule.Drop)
	require.NoError(t, a.Add(ctx, old))

	// Same name, but no valid table: the replacement cannot be installed.
	broken := rule.Rule{Action: rule.Allow, Name: "blockdev"}
	err := a.Apply(ctx, []rule.Policy{broken})
	assert.True(t, errors.Is(err, rule.ErrInvalidRule))

	installed := peer.Policies()
	require.Len(t, installed, 1)
	assert.Equal(t, old, installed[0])

	stored, err := a.Policies()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rule.Drop, stored[0].PolicyAction())
}

func TestAgent_StatusWithBrokenStore(t *testing.T) {
	store := openStore(t)
	peer := kernel.NewSimPeer(testutil.Logger(t))
	defer peer.Close()
	a := New(peer, Options{Logger: testutil.Logger(t), Store: store})

	require.NoError(t, store.Close())
	st := a.Status()
	assert.Zero(t, st.StoredRules)
}
