// Package contracttest provides an in-memory Voting contract for tests.
package contracttest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

type candidate struct {
	id    uint64
	name  string
	votes uint64
}

// Chain is a single Voting contract instance. Mutations apply when their
// handle's Wait is called, like a transaction being mined.
//
// Semantics: ids are assigned sequentially from 0; each address votes once
// per session; resetVotes zeroes every count in place and opens a new
// session. The candidate set survives a reset.
type Chain struct {
	mu         sync.Mutex
	candidates []candidate
	voted      map[common.Address]bool
	block      uint64
	txSeq      int64
	calls      int

	readErr   error
	submitErr error
	waitErr   error
	hold      chan struct{}
}

func NewChain() *Chain {
	return &Chain{voted: make(map[common.Address]bool)}
}

// Calls counts every network round trip made through any proxy.
func (c *Chain) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// SetReadErr makes getAllCandidates fail with err until cleared with nil.
func (c *Chain) SetReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetSubmitErr makes submissions fail with err until cleared with nil.
func (c *Chain) SetSubmitErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// SetWaitErr makes confirmation waits fail with err until cleared with nil.
func (c *Chain) SetWaitErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitErr = err
}

// Hold blocks confirmation waits until the returned release is called.
func (c *Chain) Hold() (release func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.hold = ch
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.hold = nil
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Proxy returns a proxy signing as from.
func (c *Chain) Proxy(from common.Address) contract.Proxy {
	return &proxy{chain: c, from: from}
}

type proxy struct {
	chain *Chain
	from  common.Address
}

func (p *proxy) From() common.Address { return p.from }

func (p *proxy) GetAllCandidates(ctx context.Context) ([]contract.RawCandidate, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make([]contract.RawCandidate, 0, len(c.candidates))
	for _, cand := range c.candidates {
		out = append(out, contract.RawCandidate{
			Id:        new(big.Int).SetUint64(cand.id),
			Name:      cand.name,
			VoteCount: new(big.Int).SetUint64(cand.votes),
		})
	}
	return out, nil
}

func (p *proxy) Vote(ctx context.Context, candidateID uint64) (contract.Handle, error) {
	return p.submit(func(c *Chain) error {
		if candidateID >= uint64(len(c.candidates)) {
			return fmt.Errorf("%w: invalid candidate", models.ErrCallReverted)
		}
		if c.voted[p.from] {
			return fmt.Errorf("%w: already voted", models.ErrCallReverted)
		}
		c.voted[p.from] = true
		c.candidates[candidateID].votes++
		return nil
	})
}

func (p *proxy) AddCandidate(ctx context.Context, name string) (contract.Handle, error) {
	return p.submit(func(c *Chain) error {
		c.candidates = append(c.candidates, candidate{id: uint64(len(c.candidates)), name: name})
		return nil
	})
}

func (p *proxy) ResetVotes(ctx context.Context) (contract.Handle, error) {
	return p.submit(func(c *Chain) error {
		for i := range c.candidates {
			c.candidates[i].votes = 0
		}
		c.voted = make(map[common.Address]bool)
		return nil
	})
}

// submit dry-runs apply on a copy, like gas estimation, so obviously
// reverting calls fail before a handle exists.
func (p *proxy) submit(apply func(c *Chain) error) (contract.Handle, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	if err := apply(c.snapshot()); err != nil {
		return nil, err
	}
	c.txSeq++
	return &handle{chain: c, hash: common.BigToHash(big.NewInt(c.txSeq)), apply: apply}, nil
}

func (c *Chain) snapshot() *Chain {
	s := &Chain{
		candidates: append([]candidate(nil), c.candidates...),
		voted:      make(map[common.Address]bool, len(c.voted)),
	}
	for k, v := range c.voted {
		s.voted[k] = v
	}
	return s
}

type handle struct {
	chain *Chain
	hash  common.Hash
	apply func(c *Chain) error
}

func (h *handle) Hash() common.Hash { return h.hash }

func (h *handle) Wait(ctx context.Context) (*models.Receipt, error) {
	c := h.chain
	c.mu.Lock()
	c.calls++
	hold := c.hold
	c.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("wait %s: %w", h.hash.Hex(), models.ErrConfirmationTimeout)
			}
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	if err := h.apply(c); err != nil {
		return nil, err
	}
	c.block++
	return &models.Receipt{TxHash: h.hash.Hex(), BlockNumber: c.block}, nil
}
