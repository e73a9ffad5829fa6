package materialite

import (
	"errors"
	"fmt"

	"github.com/l7mp/materialite/pkg/graph"
)

var (
	// ErrTxRolledBack is matched by every error returned from a failed transaction.
	ErrTxRolledBack = errors.New("transaction rolled back")
	// ErrDetached is returned when mutating a source that was detached from its coordinator.
	ErrDetached = errors.New("source is detached")
)

// TxError is returned by Tx when the transaction body fails. It matches both ErrTxRolledBack and
// the error returned by the body.
type TxError struct {
	Version graph.Version
	Cause   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction for version %d rolled back: %s", e.Version, e.Cause)
}

func (e *TxError) Unwrap() []error { return []error{ErrTxRolledBack, e.Cause} }
