package models

import "time"

// Candidate is one entry of the contract's candidate list.
type Candidate struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"vote_count"`
}

// OperationKind identifies a state-changing contract call.
type OperationKind string

// Supported mutating operations.
const (
	OpVote         OperationKind = "vote"
	OpAddCandidate OperationKind = "addCandidate"
	OpResetVotes   OperationKind = "resetVotes"
)

// OperationStatus tracks a PendingOperation through its lifecycle.
type OperationStatus string

const (
	StatusSubmitted            OperationStatus = "submitted"
	StatusAwaitingConfirmation OperationStatus = "awaiting_confirmation"
	StatusConfirmed            OperationStatus = "confirmed"
	StatusFailed               OperationStatus = "failed"
	// StatusUnknown marks an operation whose confirmation wait timed out.
	// The transaction may still confirm later; nothing reconciles it.
	StatusUnknown OperationStatus = "unknown"
)

// PendingOperation is a mutating call issued by the lifecycle manager.
type PendingOperation struct {
	ID          string          `json:"id"`
	Kind        OperationKind   `json:"kind"`
	CandidateID uint64          `json:"candidate_id,omitempty"`
	Name        string          `json:"name,omitempty"`
	From        string          `json:"from"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Status      OperationStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ResolvedAt  time.Time       `json:"resolved_at,omitempty"`
}

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	GasUsed     uint64 `json:"gas_used"`
}
