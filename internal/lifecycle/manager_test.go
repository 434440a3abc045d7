package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/internal/contract/contracttest"
	"github.com/OKaluzny/voting-dapp/internal/readmodel"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// fakeSource is a BindingSource whose binding tests can swap.
type fakeSource struct {
	mu      sync.Mutex
	binding Binding
	ok      bool
}

func (s *fakeSource) Current() (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding, s.ok
}

func (s *fakeSource) bind(p contract.Proxy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = Binding{Proxy: p, Generation: s.binding.Generation + 1}
	s.ok = true
}

func (s *fakeSource) unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = Binding{Generation: s.binding.Generation + 1}
	s.ok = false
}

// eventLog records transitions and refreshes in one ordered list.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// recordingRefresher logs each refresh before delegating to the store.
type recordingRefresher struct {
	store *readmodel.Store
	log   *eventLog
	calls int
}

func (r *recordingRefresher) Refresh(ctx context.Context, rd contract.Reader) error {
	r.calls++
	r.log.add("refresh")
	return r.store.Refresh(ctx, rd)
}

type fixture struct {
	chain     *contracttest.Chain
	source    *fakeSource
	store     *readmodel.Store
	refresher *recordingRefresher
	log       *eventLog
	mgr       *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain:  contracttest.NewChain(),
		source: &fakeSource{},
		store:  readmodel.NewStore(),
		log:    &eventLog{},
	}
	f.refresher = &recordingRefresher{store: f.store, log: f.log}
	f.mgr = NewManager(f.source, f.refresher, nil)
	f.mgr.Subscribe(func(tr Transition) { f.log.add(tr.To.String()) })
	f.source.bind(f.chain.Proxy(alice))
	require.NoError(t, f.store.Refresh(context.Background(), f.chain.Proxy(alice)))
	return f
}

func TestManager_AddCandidateScenario(t *testing.T) {
	f := newFixture(t)
	require.Empty(t, f.store.Candidates())

	out, err := f.mgr.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, out.Operation.Status)
	assert.NoError(t, out.RefreshErr)
	assert.Equal(t, []models.Candidate{{ID: 0, Name: "Alice", VoteCount: 0}}, f.store.Candidates())
	assert.Equal(t, Idle, f.mgr.State())
}

func TestManager_RefreshBeforeIdle(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"submitting", "awaiting_confirmation", "succeeded", "refresh", "idle"},
		f.log.list(),
	)
}

func TestManager_EmptyNameMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	before := f.chain.Calls()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := f.mgr.AddCandidate(context.Background(), name)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	}
	assert.Equal(t, before, f.chain.Calls())
	assert.Empty(t, f.log.list())
	assert.Equal(t, Idle, f.mgr.State())
}

func TestManager_NoBindingMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.source.unbind()
	before := f.chain.Calls()

	_, err := f.mgr.Vote(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrNoBinding)
	_, err = f.mgr.AddCandidate(context.Background(), "Alice")
	assert.ErrorIs(t, err, models.ErrNoBinding)
	_, err = f.mgr.ResetVotes(context.Background())
	assert.ErrorIs(t, err, models.ErrNoBinding)

	assert.Equal(t, before, f.chain.Calls())
	assert.Equal(t, Idle, f.mgr.State())
}

func TestManager_TwoIdentitiesVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AddCandidate(ctx, "Alice")
	require.NoError(t, err)

	_, err = f.mgr.Vote(ctx, 0)
	require.NoError(t, err)

	f.source.bind(f.chain.Proxy(bob))
	_, err = f.mgr.Vote(ctx, 0)
	require.NoError(t, err)

	got := f.store.Candidates()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].VoteCount)
}

func TestManager_VoteCountsMatchConfirmedVotesSinceReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Alice", "Bob"} {
		_, err := f.mgr.AddCandidate(ctx, name)
		require.NoError(t, err)
	}

	voters := []common.Address{
		common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03"),
	}
	for i, v := range voters {
		f.source.bind(f.chain.Proxy(v))
		_, err := f.mgr.Vote(ctx, uint64(i%2))
		require.NoError(t, err)
	}
	assert.Equal(t, []models.Candidate{
		{ID: 0, Name: "Alice", VoteCount: 2},
		{ID: 1, Name: "Bob", VoteCount: 1},
	}, f.store.Candidates())

	_, err := f.mgr.ResetVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Candidate{
		{ID: 0, Name: "Alice", VoteCount: 0},
		{ID: 1, Name: "Bob", VoteCount: 0},
	}, f.store.Candidates())

	// A new session: the same voter may vote again.
	_, err = f.mgr.Vote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.store.Candidates()[1].VoteCount)
}

func TestManager_ConcurrentOperationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddCandidate(ctx, "Alice")
	require.NoError(t, err)

	release := f.chain.Hold()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Vote(ctx, 0)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.mgr.State() == AwaitingConfirmation },
		time.Second, time.Millisecond)

	calls := f.chain.Calls()
	before := f.store.Candidates()
	for _, op := range []func() error{
		func() error { _, err := f.mgr.Vote(ctx, 0); return err },
		func() error { _, err := f.mgr.AddCandidate(ctx, "Bob"); return err },
		func() error { _, err := f.mgr.ResetVotes(ctx); return err },
	} {
		assert.ErrorIs(t, op(), models.ErrRejectedConcurrentOperation)
	}
	assert.Equal(t, calls, f.chain.Calls(), "rejected operations must not touch the network")
	assert.Equal(t, before, f.store.Candidates())
	assert.Equal(t, AwaitingConfirmation, f.mgr.State())

	release()
	require.NoError(t, <-done)
	assert.Equal(t, Idle, f.mgr.State())
	assert.Equal(t, uint64(1), f.store.Candidates()[0].VoteCount)
}

func TestManager_FailuresLeaveReadModelAndReturnToIdle(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *contracttest.Chain)
		op     func(m *Manager) error
		want   error
		status models.OperationStatus
	}{
		{
			name:   "submission rejected",
			setup:  func(c *contracttest.Chain) { c.SetSubmitErr(models.ErrNetwork) },
			op:     func(m *Manager) error { _, err := m.AddCandidate(context.Background(), "Bob"); return err },
			want:   models.ErrNetwork,
			status: models.StatusFailed,
		},
		{
			name:   "reverted after submission",
			setup:  func(c *contracttest.Chain) { c.SetWaitErr(models.ErrCallReverted) },
			op:     func(m *Manager) error { _, err := m.ResetVotes(context.Background()); return err },
			want:   models.ErrCallReverted,
			status: models.StatusFailed,
		},
		{
			name:   "unknown candidate reverts",
			setup:  func(c *contracttest.Chain) {},
			op:     func(m *Manager) error { _, err := m.Vote(context.Background(), 42); return err },
			want:   models.ErrCallReverted,
			status: models.StatusFailed,
		},
		{
			name:   "confirmation timeout",
			setup:  func(c *contracttest.Chain) { c.SetWaitErr(models.ErrConfirmationTimeout) },
			op:     func(m *Manager) error { _, err := m.Vote(context.Background(), 0); return err },
			want:   models.ErrConfirmationTimeout,
			status: models.StatusUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.AddCandidate(context.Background(), "Alice")
			require.NoError(t, err)
			before := f.store.Candidates()
			refreshes := f.refresher.calls

			tt.setup(f.chain)
			err = tt.op(f.mgr)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, Idle, f.mgr.State())
			assert.Equal(t, before, f.store.Candidates())
			assert.Equal(t, refreshes, f.refresher.calls, "failed operations must not refresh")

			ops, err := f.mgr.Journal().List()
			require.NoError(t, err)
			last := ops[len(ops)-1]
			assert.Equal(t, tt.status, last.Status)
			assert.NotEmpty(t, last.Error)

			// The manager is usable again without cleanup.
			f.chain.SetSubmitErr(nil)
			f.chain.SetWaitErr(nil)
			_, err = f.mgr.AddCandidate(context.Background(), "Carol")
			require.NoError(t, err)
		})
	}
}

func TestManager_TimeoutWhileHeld(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)

	release := f.chain.Hold()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = f.mgr.Vote(ctx, 0)
	assert.ErrorIs(t, err, models.ErrConfirmationTimeout)
	assert.Equal(t, Idle, f.mgr.State())

	unresolved, err := f.mgr.Journal().Unresolved()
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, models.OpVote, unresolved[0].Kind)
	assert.NotEmpty(t, unresolved[0].TxHash)
}

func TestManager_StaleBinding(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	refreshes := f.refresher.calls

	release := f.chain.Hold()
	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Vote(context.Background(), 0)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.mgr.State() == AwaitingConfirmation },
		time.Second, time.Millisecond)

	// The wallet switches accounts mid-flight.
	f.source.bind(f.chain.Proxy(bob))
	release()

	err = <-done
	assert.ErrorIs(t, err, models.ErrStaleBinding)
	assert.Equal(t, refreshes, f.refresher.calls)
	assert.Equal(t, Idle, f.mgr.State())
}

func TestManager_RefreshFailureAfterConfirmation(t *testing.T) {
	f := newFixture(t)
	f.chain.SetReadErr(models.ErrNetwork)

	out, err := f.mgr.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err, "a confirmed transaction is not a failed operation")
	assert.True(t, errors.Is(out.RefreshErr, models.ErrNetwork))
	assert.Empty(t, f.store.Candidates())
	assert.Equal(t, Idle, f.mgr.State())
}

func TestManager_JournalRecordsOperation(t *testing.T) {
	f := newFixture(t)
	out, err := f.mgr.AddCandidate(context.Background(), "  Alice  ")
	require.NoError(t, err)

	op, err := f.mgr.Journal().Get(out.Operation.ID)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, models.OpAddCandidate, op.Kind)
	assert.Equal(t, "Alice", op.Name)
	assert.Equal(t, alice.Hex(), op.From)
	assert.Equal(t, out.Receipt.TxHash, op.TxHash)
	assert.Equal(t, models.StatusConfirmed, op.Status)
	assert.False(t, op.ResolvedAt.Before(op.SubmittedAt))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		inFlight bool
	}{
		{Idle, "idle", false},
		{Submitting, "submitting", true},
		{AwaitingConfirmation, "awaiting_confirmation", true},
		{Succeeded, "succeeded", false},
		{Failed, "failed", false},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			assert.Equal(t, tt.inFlight, tt.state.InFlight())
		})
	}
}
