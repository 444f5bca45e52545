package atom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewNotFoundError(CodeNodeNotFound, "abc")

	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.False(t, errors.Is(err, ErrLinkNotFound))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrNodeNotFound))
}

func TestErrorMessage(t *testing.T) {
	err := NewNotFoundError(CodeLinkNotFound, "abc")
	assert.Equal(t, "LINK_NOT_FOUND: not found (handle=abc)", err.Error())

	wrapped := NewAddLinkError("bad target", NewAddNodeError("node name is required"))
	assert.Equal(t, "ADD_LINK: bad target: ADD_NODE: node name is required", wrapped.Error())

	assert.Equal(t, "ATOM_NOT_FOUND", ErrAtomNotFound.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError(CodeNodeNotFound, "a")))
	assert.True(t, IsNotFound(NewNotFoundError(CodeLinkNotFound, "a")))
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", NewNotFoundError(CodeAtomNotFound, "a"))))
	assert.False(t, IsNotFound(NewAddNodeError("x")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestIsInvalidInput(t *testing.T) {
	assert.True(t, IsInvalidInput(NewAddNodeError("x")))
	assert.True(t, IsInvalidInput(NewCyclicStructureError("L", 4)))
	assert.True(t, IsInvalidInput(NewArityExceededError("L", 12, 10)))
	assert.False(t, IsInvalidInput(NewNotFoundError(CodeNodeNotFound, "a")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeArityExceeded, CodeOf(NewArityExceededError("L", 12, 10)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
