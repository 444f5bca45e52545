package atom

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes atom errors.
type ErrorCode string

const (
	// CodeAddNode indicates a malformed node description.
	CodeAddNode ErrorCode = "ADD_NODE"

	// CodeAddLink indicates a malformed link description.
	CodeAddLink ErrorCode = "ADD_LINK"

	// CodeNodeNotFound indicates a node lookup miss.
	CodeNodeNotFound ErrorCode = "NODE_NOT_FOUND"

	// CodeLinkNotFound indicates a link lookup miss.
	CodeLinkNotFound ErrorCode = "LINK_NOT_FOUND"

	// CodeAtomNotFound indicates a lookup miss by bare handle.
	CodeAtomNotFound ErrorCode = "ATOM_NOT_FOUND"

	// CodeCyclicStructure indicates link nesting deeper than the configured
	// limit, which is how a cyclic description manifests.
	CodeCyclicStructure ErrorCode = "CYCLIC_STRUCTURE"

	// CodeArityExceeded indicates a link with more targets than the pattern
	// index accepts.
	CodeArityExceeded ErrorCode = "ARITY_EXCEEDED"
)

// Error is the error type returned for malformed input and lookup misses.
//
// Sentinel values (ErrNodeNotFound, ...) carry only a Code and match any
// Error with the same Code under errors.Is.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Handle identifies the atom involved, when known.
	Handle string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is matching.
var (
	ErrAddNode         = &Error{Code: CodeAddNode}
	ErrAddLink         = &Error{Code: CodeAddLink}
	ErrNodeNotFound    = &Error{Code: CodeNodeNotFound}
	ErrLinkNotFound    = &Error{Code: CodeLinkNotFound}
	ErrAtomNotFound    = &Error{Code: CodeAtomNotFound}
	ErrCyclicStructure = &Error{Code: CodeCyclicStructure}
	ErrArityExceeded   = &Error{Code: CodeArityExceeded}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Handle != "" {
		msg = fmt.Sprintf("%s (handle=%s)", msg, e.Handle)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Handle == "" && t.Code == e.Code
}

// NewAddNodeError reports a malformed node description.
func NewAddNodeError(message string) *Error {
	return &Error{Code: CodeAddNode, Message: message}
}

// NewAddLinkError reports a malformed link description, optionally wrapping
// the failure of one of its targets.
func NewAddLinkError(message string, cause error) *Error {
	return &Error{Code: CodeAddLink, Message: message, Err: cause}
}

// NewNotFoundError reports a lookup miss.
func NewNotFoundError(code ErrorCode, handle string) *Error {
	return &Error{Code: code, Message: "not found", Handle: handle}
}

// NewCyclicStructureError reports nesting beyond maxDepth.
func NewCyclicStructureError(typ string, maxDepth int) *Error {
	return &Error{
		Code:    CodeCyclicStructure,
		Message: fmt.Sprintf("link %q nested deeper than %d levels", typ, maxDepth),
	}
}

// NewArityExceededError reports a link with too many targets.
func NewArityExceededError(typ string, arity, maxArity int) *Error {
	return &Error{
		Code:    CodeArityExceeded,
		Message: fmt.Sprintf("link %q has arity %d, limit is %d", typ, arity, maxArity),
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsNotFound reports whether err is any lookup miss.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeNodeNotFound, CodeLinkNotFound, CodeAtomNotFound:
		return true
	}
	return false
}

// IsInvalidInput reports whether err was caused by a malformed description.
func IsInvalidInput(err error) bool {
	switch CodeOf(err) {
	case CodeAddNode, CodeAddLink, CodeCyclicStructure, CodeArityExceeded:
		return true
	}
	return false
}
