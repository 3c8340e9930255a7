package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindPersistence, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("get post: %w", NotFound("post"))))
	assert.Equal(t, KindNetwork, KindOf(Network(errors.New("refused"), "checkout")))
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("purchase: %w", NotFound("post"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrPermissionDenied)

	cause := errors.New("disk full")
	wrapped := Persistence(cause, "write upload")
	assert.ErrorIs(t, wrapped, cause)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "post not found", Message(NotFound("post")))
	assert.Equal(t, "internal error", Message(errors.New("raw driver error")))
	assert.Equal(t, "internal error", Message(Persistence(errors.New("constraint"), "insert profile")))
	assert.Equal(t, "upstream service unavailable", Message(Network(errors.New("timeout"), "ask")))
}

func TestFieldsOf(t *testing.T) {
	err := fmt.Errorf("register: %w", Validation("invalid input", FieldError{Field: "email", Message: "must be a valid email"}))
	assert.Equal(t, []FieldError{{Field: "email", Message: "must be a valid email"}}, FieldsOf(err))
	assert.Nil(t, FieldsOf(errors.New("plain")))
}
