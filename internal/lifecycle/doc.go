/*
Package lifecycle issues the Voting contract's mutating calls one at a time.

# States

A Manager moves through

	idle → submitting → awaiting_confirmation → succeeded → idle
	                 ↘                       ↘
	                  failed → idle            failed → idle

Only idle accepts a new operation; anything else fails with
models.ErrRejectedConcurrentOperation without touching the network.

# Refresh

After a confirmation the manager re-reads the candidate list through its
Refresher before returning to idle. A failed refresh is reported on
Outcome.RefreshErr; the operation itself still succeeded.

# Bindings

Each operation captures the binding that was current when it started. If
the wallet session changed by the time the transaction confirmed, the
operation fails with models.ErrStaleBinding and nothing is refreshed.

# Journal

Every operation is written to a storage.OperationStore. Operations whose
confirmation wait timed out after submission are kept with status
"unknown"; nothing reconciles them later.
*/
package lifecycle
