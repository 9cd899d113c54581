package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies a machine failure.
type ErrorKind int

const (
	KindInvalidMemoryAccess ErrorKind = iota + 1
	KindInvalidObjectAccess
	KindStackOverflow
	KindStackUnderflow
	KindDivisionByZero
	KindCorruptedStoryFile
	KindUnsupportedOperation
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidMemoryAccess:
		return "InvalidMemoryAccess"
	case KindInvalidObjectAccess:
		return "InvalidObjectAccess"
	case KindStackOverflow:
		return "StackOverflow"
	case KindStackUnderflow:
		return "StackUnderflow"
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindCorruptedStoryFile:
		return "CorruptedStoryFile"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Severity says how much of the machine survives an error.
//
//   - SeverityWarning: logged, execution may continue past the instruction
//   - SeverityError: the instruction aborted; the caller decides
//   - SeverityFatal: the machine is no longer trustworthy and stops
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Error is the single error type raised by the machine.
type Error struct {
	Kind     ErrorKind
	Severity Severity
	Address  uint32 // memory address, for InvalidMemoryAccess
	Object   uint16 // object id, for InvalidObjectAccess
	Op       string // opcode name, for UnsupportedOperation
	Message  string
	Err      error // underlying cause, if any
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrInvalidMemoryAccess  = &Error{Kind: KindInvalidMemoryAccess}
	ErrInvalidObjectAccess  = &Error{Kind: KindInvalidObjectAccess}
	ErrStackOverflow        = &Error{Kind: KindStackOverflow}
	ErrStackUnderflow       = &Error{Kind: KindStackUnderflow}
	ErrDivisionByZero       = &Error{Kind: KindDivisionByZero}
	ErrCorruptedStoryFile   = &Error{Kind: KindCorruptedStoryFile}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
)

func (e *Error) Error() string {
	var s string
	switch e.Kind {
	case KindInvalidMemoryAccess:
		s = fmt.Sprintf("invalid memory access at 0x%05x", e.Address)
	case KindInvalidObjectAccess:
		s = fmt.Sprintf("invalid object access: object %d", e.Object)
	case KindStackOverflow:
		s = "stack overflow"
	case KindStackUnderflow:
		s = "stack underflow"
	case KindDivisionByZero:
		s = "division by zero"
	case KindCorruptedStoryFile:
		s = "corrupted story file"
	case KindUnsupportedOperation:
		s = "unsupported operation"
		if e.Op != "" {
			s += " " + e.Op
		}
	default:
		s = e.Kind.String()
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error leaves the machine unusable.
func (e *Error) Fatal() bool {
	return e.Severity == SeverityFatal
}

// SeverityOf returns the severity of err. Errors that did not come from the
// machine are treated as SeverityError.
func SeverityOf(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityError
}

// IsFatal reports whether err is a fatal machine error.
func IsFatal(err error) bool {
	return err != nil && SeverityOf(err) == SeverityFatal
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func memoryError(addr uint32, format string, args ...any) *Error {
	return &Error{
		Kind:     KindInvalidMemoryAccess,
		Severity: SeverityError,
		Address:  addr,
		Message:  fmt.Sprintf(format, args...),
	}
}

// writeViolation is raised for writes outside dynamic memory. The story
// file's static and high regions are immutable, so this is fatal.
func writeViolation(addr uint32, region Region) *Error {
	return &Error{
		Kind:     KindInvalidMemoryAccess,
		Severity: SeverityFatal,
		Address:  addr,
		Message:  fmt.Sprintf("write to %s memory", region),
	}
}

func objectError(id uint16, format string, args ...any) *Error {
	return &Error{
		Kind:     KindInvalidObjectAccess,
		Severity: SeverityError,
		Object:   id,
		Message:  fmt.Sprintf(format, args...),
	}
}

func stackOverflow(format string, args ...any) *Error {
	return &Error{
		Kind:     KindStackOverflow,
		Severity: SeverityFatal,
		Message:  fmt.Sprintf(format, args...),
	}
}

func stackUnderflow(format string, args ...any) *Error {
	return &Error{
		Kind:     KindStackUnderflow,
		Severity: SeverityFatal,
		Message:  fmt.Sprintf(format, args...),
	}
}

func divisionByZero(op string) *Error {
	return &Error{
		Kind:     KindDivisionByZero,
		Severity: SeverityFatal,
		Op:       op,
		Message:  op,
	}
}

func corrupted(format string, args ...any) *Error {
	return &Error{
		Kind:     KindCorruptedStoryFile,
		Severity: SeverityFatal,
		Message:  fmt.Sprintf(format, args...),
	}
}

// malformed is a corrupt-instruction error that aborts only the current
// instruction (bad operand count, illegal local count in a routine header).
func malformed(format string, args ...any) *Error {
	return &Error{
		Kind:     KindCorruptedStoryFile,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

func unsupported(op string, format string, args ...any) *Error {
	return &Error{
		Kind:     KindUnsupportedOperation,
		Severity: SeverityWarning,
		Op:       op,
		Message:  fmt.Sprintf(format, args...),
	}
}
