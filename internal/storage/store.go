package storage

import "github.com/OKaluzny/voting-dapp/pkg/models"

// OperationStore journals mutating operations and their outcomes.
type OperationStore interface {
	// Put inserts or replaces the operation with op.ID.
	Put(op models.PendingOperation) error
	// Get returns the operation by id, or nil if not found.
	Get(id string) (*models.PendingOperation, error)
	// List returns all operations in submission order.
	List() ([]models.PendingOperation, error)
	// Unresolved returns operations whose on-chain outcome is unknown.
	Unresolved() ([]models.PendingOperation, error)
}
