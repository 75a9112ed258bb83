package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
	}{
		{"invalid", NewInvalid("bad input"), http.StatusBadRequest},
		{"not found", NewNotFound("graph %s not found", "g1"), http.StatusNotFound},
		{"conflict", NewConflict("duplicate graph id"), http.StatusConflict},
		{"engine not available", NewEngineNotAvailable("falkordb"), http.StatusBadRequest},
		{"not supported", NewNotSupported("raw SQL on a cypher store"), http.StatusBadRequest},
		{"depth limit", NewDepthLimitExceeded(21, 1, 20), http.StatusBadRequest},
		{"store unavailable", NewStoreUnavailable("neo4j", fmt.Errorf("dial tcp")), http.StatusServiceUnavailable},
		{"internal", NewInternal("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.status, HTTPStatusOf(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NewNotFound("missing")))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain error")))

	// Kind survives fmt wrapping.
	wrapped := fmt.Errorf("outer context: %w", NewConflict("dup"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, IsConflict(wrapped))
}

func TestWrapPreservesKind(t *testing.T) {
	err := Wrap(NewStoreUnavailable("postgres", fmt.Errorf("pool exhausted")), "list graphs")
	assert.True(t, IsStoreUnavailable(err))
	assert.Contains(t, err.Error(), "list graphs")

	internal := Wrap(fmt.Errorf("driver oops"), "get graph")
	assert.Equal(t, KindInternal, KindOf(internal))

	assert.Nil(t, Wrap(nil, "noop"))
}
