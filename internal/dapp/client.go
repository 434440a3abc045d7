package dapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/internal/lifecycle"
	"github.com/OKaluzny/voting-dapp/internal/readmodel"
	"github.com/OKaluzny/voting-dapp/internal/storage"
	"github.com/OKaluzny/voting-dapp/internal/view"
	"github.com/OKaluzny/voting-dapp/internal/wallet"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Binder builds a contract proxy for an identity.
type Binder func(id *wallet.Identity) (contract.Proxy, error)

// Client keeps the contract binding in step with the wallet session and
// exposes the voting operations.
type Client struct {
	session     *wallet.Session
	binder      Binder
	candidates  *readmodel.Store
	manager     *lifecycle.Manager
	callTimeout time.Duration

	mu      sync.RWMutex
	binding lifecycle.Binding
	bound   bool

	logger *slog.Logger
}

// New wires a client. callTimeout bounds every read and submission made
// through the binding, including the refresh after a confirmation; zero
// disables it.
func New(session *wallet.Session, binder Binder, journal storage.OperationStore, callTimeout time.Duration) *Client {
	c := &Client{
		session:     session,
		binder:      binder,
		candidates:  readmodel.NewStore(),
		callTimeout: callTimeout,
		logger:      slog.Default().With("component", "client"),
	}
	c.manager = lifecycle.NewManager(c, c.candidates, journal)
	return c
}

// Connect runs the wallet connector, rebuilds the binding for the new
// identity and fetches the candidates. A failed initial fetch is returned
// but leaves the wallet connected.
func (c *Client) Connect(ctx context.Context) (*wallet.Identity, error) {
	id, err := c.session.Connect(ctx)
	if err != nil {
		return nil, err
	}

	proxy, err := c.binder(id)
	if err != nil {
		c.session.Disconnect()
		c.unbind()
		return nil, fmt.Errorf("bind contract: %w", err)
	}

	c.mu.Lock()
	c.binding = lifecycle.Binding{Proxy: withCallTimeout(proxy, c.callTimeout), Generation: c.session.Generation()}
	c.bound = true
	c.mu.Unlock()
	c.logger.Info("contract bound", "from", id.Address.Hex())

	if err := c.Refresh(ctx); err != nil {
		return id, fmt.Errorf("initial fetch: %w", err)
	}
	return id, nil
}

// Disconnect drops the identity and binding. Operations still in flight
// against the old binding fail with models.ErrStaleBinding.
func (c *Client) Disconnect() {
	c.session.Disconnect()
	c.unbind()
	c.candidates.Clear()
}

func (c *Client) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binding = lifecycle.Binding{Generation: c.session.Generation()}
	c.bound = false
}

// Current implements lifecycle.BindingSource.
func (c *Client) Current() (lifecycle.Binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.binding, c.bound
}

// Refresh re-reads the candidate list.
func (c *Client) Refresh(ctx context.Context) error {
	b, ok := c.Current()
	if !ok {
		return models.ErrNoBinding
	}
	return c.candidates.Refresh(ctx, b.Proxy)
}

func (c *Client) Vote(ctx context.Context, candidateID uint64) (*lifecycle.Outcome, error) {
	return c.manager.Vote(ctx, candidateID)
}

func (c *Client) AddCandidate(ctx context.Context, name string) (*lifecycle.Outcome, error) {
	return c.manager.AddCandidate(ctx, name)
}

func (c *Client) ResetVotes(ctx context.Context) (*lifecycle.Outcome, error) {
	return c.manager.ResetVotes(ctx)
}

// Candidates returns the read-model in contract order.
func (c *Client) Candidates() []models.Candidate {
	return c.candidates.Candidates()
}

// Identity returns the connected identity, if any.
func (c *Client) Identity() (*wallet.Identity, bool) {
	return c.session.Identity()
}

// View projects the current UI state.
func (c *Client) View() view.State {
	_, connected := c.session.Identity()
	return view.Project(view.Inputs{
		WalletConnected: connected,
		State:           c.manager.State(),
		Refreshing:      c.candidates.Refreshing(),
	})
}

func (c *Client) Manager() *lifecycle.Manager {
	return c.manager
}

// Subscribe registers fn for lifecycle transitions.
func (c *Client) Subscribe(fn func(lifecycle.Transition)) {
	c.manager.Subscribe(fn)
}

// Unresolved lists operations whose outcome is unknown after a timeout.
func (c *Client) Unresolved() ([]models.PendingOperation, error) {
	return c.manager.Journal().Unresolved()
}
