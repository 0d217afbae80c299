package returns

import (
	"fmt"

	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
)

// transitions is the only authority on legal return status changes.
var transitions = map[enums.ReturnStatus][]enums.ReturnStatus{
	enums.ReturnStatusPending: {
		enums.ReturnStatusApproved,
		enums.ReturnStatusRejected,
		enums.ReturnStatusCancelled,
	},
	enums.ReturnStatusApproved: {
		enums.ReturnStatusPickupScheduled,
		enums.ReturnStatusCancelled,
	},
	enums.ReturnStatusPickupScheduled: {enums.ReturnStatusPickedUp},
	enums.ReturnStatusPickedUp:        {enums.ReturnStatusReceived},
	enums.ReturnStatusReceived:        {enums.ReturnStatusRefunded},
}

// CanTransition reports whether from -> to is a legal return status change.
func CanTransition(from, to enums.ReturnStatus) error {
	if !from.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid current status %q", from))
	}
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", to))
	}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition from terminal status %q", from))
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("invalid transition %s -> %s", from, to))
}
