// Package errs defines the semantic error kinds shared by every core
// component (spec §7). Components never compare error strings; they
// construct a *errs.Error with a Kind and inspect it with errors.As.
package errs

import "fmt"

// Kind is a semantic error category, independent of its message text.
type Kind uint8

const (
	Other Kind = iota
	Malformed
	InvalidSignature
	BrokenIntegrity
	BadNetwork
	DuplicatedUnconfirmed
	DuplicatedConfirmed
	TooLargeTx
	ResourceNotFound
	NotImplemented
	WrongTxType
	SmartContractFault
	WasmMachineFault
	DatabaseFault
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "Malformed"
	case InvalidSignature:
		return "InvalidSignature"
	case BrokenIntegrity:
		return "BrokenIntegrity"
	case BadNetwork:
		return "BadNetwork"
	case DuplicatedUnconfirmed:
		return "DuplicatedUnconfirmed"
	case DuplicatedConfirmed:
		return "DuplicatedConfirmed"
	case TooLargeTx:
		return "TooLargeTx"
	case ResourceNotFound:
		return "ResourceNotFound"
	case NotImplemented:
		return "NotImplemented"
	case WrongTxType:
		return "WrongTxType"
	case SmartContractFault:
		return "SmartContractFault"
	case WasmMachineFault:
		return "WasmMachineFault"
	case DatabaseFault:
		return "DatabaseFault"
	default:
		return "Other"
	}
}

// Error is the single error type used across the core. Context is a
// free-form string describing what was being attempted; Cause is the
// wrapped underlying error, if any.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a context message.
func New(k Kind, context string) *Error {
	return &Error{Kind: k, Context: context}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(k Kind, context string, cause error) *Error {
	return &Error{Kind: k, Context: context, Cause: cause}
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, returning Other if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return Other
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

