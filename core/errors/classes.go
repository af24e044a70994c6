package errors

import stderrors "errors"

// Error classes. Every vault failure unwraps to exactly one of these so that
// transports can map them without knowing individual errors.
var (
	ErrValidation    = stderrors.New("validation error")
	ErrAuthorization = stderrors.New("authorization error")
	ErrState         = stderrors.New("state error")
	ErrArithmetic    = stderrors.New("arithmetic error")
)

// Coded is a sentinel error tagged with a stable code and its class.
type Coded struct {
	class error
	code  string
	msg   string
}

// New declares a sentinel in the supplied class.
func New(class error, code, msg string) *Coded {
	return &Coded{class: class, code: code, msg: msg}
}

func (e *Coded) Error() string { return e.msg }

// Code is the machine readable identifier surfaced by the API.
func (e *Coded) Code() string { return e.code }

// Class returns the taxonomy class.
func (e *Coded) Class() error { return e.class }

func (e *Coded) Unwrap() error { return e.class }

// ClassOf reports the class an error belongs to, or nil when unclassified.
func ClassOf(err error) error {
	for _, class := range []error{ErrValidation, ErrAuthorization, ErrState, ErrArithmetic} {
		if stderrors.Is(err, class) {
			return class
		}
	}
	return nil
}

// CodeOf extracts the code from the first Coded error in the chain.
func CodeOf(err error) string {
	var coded *Coded
	if stderrors.As(err, &coded) {
		return coded.code
	}
	return ""
}
