package core

import (
	"errors"
	"time"

	"github.com/google/uuid"

	coreerrors "stakevault/core/errors"
	"stakevault/core/types"
)

// Receipt is the outcome of one applied instruction. Failed instructions
// carry the error and no events; state is unchanged by them.
type Receipt struct {
	ID          uuid.UUID      `json:"id"`
	Instruction string         `json:"instruction"`
	Sender      string         `json:"sender,omitempty"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Code        string         `json:"code,omitempty"`
	Class       string         `json:"class,omitempty"`
	Result      interface{}    `json:"result,omitempty"`
	Events      []*types.Event `json:"events,omitempty"`
	// Matured counts unbonding entries released before the instruction ran.
	Matured   int       `json:"matured,omitempty"`
	StateRoot string    `json:"stateRoot,omitempty"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Err rebuilds a comparable error from a failed receipt. Only the class is
// recoverable through errors.Is.
func (r *Receipt) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &receiptError{msg: r.Error, class: classByName(r.Class)}
}

type receiptError struct {
	msg   string
	class error
}

func (e *receiptError) Error() string { return e.msg }
func (e *receiptError) Unwrap() error { return e.class }

// ClassName returns the stable label of an error's class.
func ClassName(err error) string {
	switch coreerrors.ClassOf(err) {
	case coreerrors.ErrValidation:
		return "validation"
	case coreerrors.ErrAuthorization:
		return "authorization"
	case coreerrors.ErrState:
		return "state"
	case coreerrors.ErrArithmetic:
		return "arithmetic"
	default:
		return "internal"
	}
}

func classByName(name string) error {
	switch name {
	case "validation":
		return coreerrors.ErrValidation
	case "authorization":
		return coreerrors.ErrAuthorization
	case "state":
		return coreerrors.ErrState
	case "arithmetic":
		return coreerrors.ErrArithmetic
	default:
		return errInternal
	}
}

var errInternal = errors.New("internal error")

func failReceipt(r *Receipt, err error) {
	r.Success = false
	r.Error = err.Error()
	r.Code = coreerrors.CodeOf(err)
	r.Class = ClassName(err)
	r.Result = nil
	r.Events = nil
	r.StateRoot = ""
}
