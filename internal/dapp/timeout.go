package dapp

import (
	"context"
	"time"

	"github.com/OKaluzny/voting-dapp/internal/contract"
)

// timedProxy bounds every read and every submission with timeout.
// Confirmation waits keep their own deadline.
type timedProxy struct {
	contract.Proxy
	timeout time.Duration
}

func withCallTimeout(p contract.Proxy, timeout time.Duration) contract.Proxy {
	if timeout <= 0 {
		return p
	}
	return &timedProxy{Proxy: p, timeout: timeout}
}

func (p *timedProxy) GetAllCandidates(ctx context.Context) ([]contract.RawCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Proxy.GetAllCandidates(ctx)
}

func (p *timedProxy) Vote(ctx context.Context, candidateID uint64) (contract.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Proxy.Vote(ctx, candidateID)
}

func (p *timedProxy) AddCandidate(ctx context.Context, name string) (contract.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Proxy.AddCandidate(ctx, name)
}

func (p *timedProxy) ResetVotes(ctx context.Context) (contract.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Proxy.ResetVotes(ctx)
}
