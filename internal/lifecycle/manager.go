package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/internal/storage"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Binding is a contract proxy tagged with the wallet session generation it
// was built for.
type Binding struct {
	Proxy      contract.Proxy
	Generation uint64
}

// BindingSource hands out the current binding, if a wallet is connected.
type BindingSource interface {
	Current() (Binding, bool)
}

// Refresher re-reads the candidate list after a confirmed operation.
type Refresher interface {
	Refresh(ctx context.Context, r contract.Reader) error
}

// Transition is published on every state change.
type Transition struct {
	OperationID string
	Kind        models.OperationKind
	From        State
	To          State
	Err         error
}

// Outcome describes a confirmed operation.
type Outcome struct {
	Operation models.PendingOperation
	Receipt   *models.Receipt
	// RefreshErr is set when the transaction confirmed but re-reading the
	// candidates failed. The read-model then still holds the old list.
	RefreshErr error
}

// Manager issues vote, addCandidate and resetVotes one at a time, waits for
// confirmation and refreshes the read-model. It never retries.
type Manager struct {
	source    BindingSource
	refresher Refresher
	store     storage.OperationStore
	now       func() time.Time

	mu          sync.Mutex
	state       State
	subscribers []func(Transition)

	logger *slog.Logger
}

// NewManager creates an idle manager. A nil store gets an in-memory one.
func NewManager(source BindingSource, refresher Refresher, store storage.OperationStore) *Manager {
	if store == nil {
		store = storage.NewMemoryOperationStore()
	}
	return &Manager{
		source:    source,
		refresher: refresher,
		store:     store,
		now:       time.Now,
		state:     Idle,
		logger:    slog.Default().With("component", "lifecycle"),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every transition. fn runs on the goroutine
// that drives the operation and must not call back into the manager's
// operations.
func (m *Manager) Subscribe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Journal returns the operation store.
func (m *Manager) Journal() storage.OperationStore {
	return m.store
}

// Vote casts a vote for candidateID. Membership in the read-model is not
// checked; the contract decides.
func (m *Manager) Vote(ctx context.Context, candidateID uint64) (*Outcome, error) {
	op := models.PendingOperation{Kind: models.OpVote, CandidateID: candidateID}
	return m.run(ctx, op, func(ctx context.Context, p contract.Proxy) (contract.Handle, error) {
		return p.Vote(ctx, candidateID)
	})
}

// AddCandidate adds a candidate. An empty name fails with
// models.ErrInvalidArgument before anything is sent.
func (m *Manager) AddCandidate(ctx context.Context, name string) (*Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: empty candidate name", models.OpAddCandidate, models.ErrInvalidArgument)
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%s: %w: name is not valid UTF-8", models.OpAddCandidate, models.ErrInvalidArgument)
	}
	op := models.PendingOperation{Kind: models.OpAddCandidate, Name: name}
	return m.run(ctx, op, func(ctx context.Context, p contract.Proxy) (contract.Handle, error) {
		return p.AddCandidate(ctx, name)
	})
}

// ResetVotes starts a new voting session.
func (m *Manager) ResetVotes(ctx context.Context) (*Outcome, error) {
	op := models.PendingOperation{Kind: models.OpResetVotes}
	return m.run(ctx, op, func(ctx context.Context, p contract.Proxy) (contract.Handle, error) {
		return p.ResetVotes(ctx)
	})
}

type submitFunc func(ctx context.Context, p contract.Proxy) (contract.Handle, error)

func (m *Manager) run(ctx context.Context, op models.PendingOperation, submit submitFunc) (*Outcome, error) {
	binding, err := m.begin(&op)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Kind, err)
	}
	defer m.transition(op, Idle, nil)

	m.logger.Info("submitting operation",
		"op_id", op.ID,
		"kind", op.Kind,
		"from", op.From,
	)

	h, err := submit(ctx, binding.Proxy)
	if err != nil {
		return nil, m.fail(&op, err)
	}

	op.TxHash = h.Hash().Hex()
	op.Status = models.StatusAwaitingConfirmation
	m.journal(op)
	m.transition(op, AwaitingConfirmation, nil)

	receipt, err := h.Wait(ctx)
	if err != nil {
		return nil, m.fail(&op, err)
	}

	if cur, ok := m.source.Current(); !ok || cur.Generation != binding.Generation {
		return nil, m.fail(&op, models.ErrStaleBinding)
	}

	op.Status = models.StatusConfirmed
	op.ResolvedAt = m.now()
	m.journal(op)
	m.transition(op, Succeeded, nil)

	out := &Outcome{Operation: op, Receipt: receipt}
	if err := m.refresher.Refresh(ctx, binding.Proxy); err != nil {
		m.logger.Warn("refresh after confirmation failed", "op_id", op.ID, "error", err)
		out.RefreshErr = err
	}

	m.logger.Info("operation confirmed",
		"op_id", op.ID,
		"kind", op.Kind,
		"tx", op.TxHash,
		"block", receipt.BlockNumber,
	)
	return out, nil
}

// begin claims the single flight slot and the current binding.
func (m *Manager) begin(op *models.PendingOperation) (Binding, error) {
	m.mu.Lock()
	if m.state != Idle {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("operation rejected", "kind", op.Kind, "state", state)
		return Binding{}, models.ErrRejectedConcurrentOperation
	}
	binding, ok := m.source.Current()
	if !ok || binding.Proxy == nil {
		m.mu.Unlock()
		return Binding{}, models.ErrNoBinding
	}
	m.state = Submitting
	m.mu.Unlock()

	op.ID = uuid.NewString()
	op.From = binding.Proxy.From().Hex()
	op.Status = models.StatusSubmitted
	op.SubmittedAt = m.now()
	m.journal(*op)
	m.publish(Transition{OperationID: op.ID, Kind: op.Kind, From: Idle, To: Submitting})
	return binding, nil
}

// fail records err as the terminal state of op. Once a transaction hash
// exists, a timeout or cancellation leaves the on-chain outcome unknown.
func (m *Manager) fail(op *models.PendingOperation, err error) error {
	op.Status = models.StatusFailed
	if op.TxHash != "" && (errors.Is(err, models.ErrConfirmationTimeout) || errors.Is(err, context.Canceled)) {
		op.Status = models.StatusUnknown
	}
	op.Error = err.Error()
	op.ResolvedAt = m.now()
	m.journal(*op)
	m.transition(*op, Failed, err)

	m.logger.Error("operation failed",
		"op_id", op.ID,
		"kind", op.Kind,
		"tx", op.TxHash,
		"status", op.Status,
		"error", err,
	)
	return fmt.Errorf("%s: %w", op.Kind, err)
}

func (m *Manager) transition(op models.PendingOperation, to State, err error) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	m.logger.Debug("state transition", "op_id", op.ID, "from", from, "to", to)
	m.publish(Transition{OperationID: op.ID, Kind: op.Kind, From: from, To: to, Err: err})
}

func (m *Manager) publish(t Transition) {
	m.mu.Lock()
	subs := make([]func(Transition), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

func (m *Manager) journal(op models.PendingOperation) {
	if err := m.store.Put(op); err != nil {
		m.logger.Warn("journal write failed", "op_id", op.ID, "error", err)
	}
}
