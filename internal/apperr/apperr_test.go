// ABOUTME: Tests for the error taxonomy and its HTTP status mapping
// ABOUTME: Covers errors.Is kind matching through wrapping

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"conflict", Conflict("taken"), http.StatusConflict},
		{"not found", NotFound("gone"), http.StatusNotFound},
		{"state", State("not ready"), http.StatusConflict},
		{"derivation mismatch", DerivationMismatch("wrong script"), http.StatusInternalServerError},
		{"storage", Storage("write failed", errors.New("disk full")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped validation", fmt.Errorf("outer: %w", Validation("bad")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("registering: %w", Conflict(`Tag "x" is already registered to another identity`))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestMessage(t *testing.T) {
	cause := errors.New("permission denied")
	err := Storage("saving registry", cause)

	assert.Equal(t, "saving registry", Message(err))
	assert.Equal(t, "saving registry: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
