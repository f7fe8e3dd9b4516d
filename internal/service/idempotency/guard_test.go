package idempotency

import (
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/storage/memory"
)

func newGuard() *Guard {
	return NewGuard(memory.NewIdempotencyRepository(), WithGuardRegisterer(prometheus.NewRegistry()))
}

func TestGuardReplaysSuccessfulResponse(t *testing.T) {
	guard := newGuard()
	calls := 0
	handler := func() (Response, error) {
		calls++
		return Response{Status: http.StatusCreated, Body: []byte(`{"id":"sale-1"}`)}, nil
	}

	first, replayed, err := guard.Do("key-1", "POST /sales", []byte(`{"items":[]}`), handler)
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, http.StatusCreated, first.Status)

	second, replayed, err := guard.Do("key-1", "POST /sales", []byte(`{"items":[]}`), handler)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestGuardRejectsPayloadMismatch(t *testing.T) {
	guard := newGuard()
	ok := func() (Response, error) { return Response{Status: http.StatusCreated}, nil }

	_, _, err := guard.Do("key-2", "POST /sales", []byte(`{"a":1}`), ok)
	require.NoError(t, err)

	_, _, err = guard.Do("key-2", "POST /sales", []byte(`{"a":2}`), ok)
	if !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestGuardReportsInProgress(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, WithGuardRegisterer(prometheus.NewRegistry()))

	payload := []byte(`{}`)
	_, err := repo.CreateProcessing("key-3", RequestHash("POST /sales", payload), guard.now().Add(guard.ttl))
	require.NoError(t, err)

	_, _, err = guard.Do("key-3", "POST /sales", payload, func() (Response, error) {
		t.Fatal("handler must not run")
		return Response{}, nil
	})
	if !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}
}

func TestGuardReplaysFailures(t *testing.T) {
	guard := newGuard()
	conflict := func() (Response, error) {
		return Response{Status: http.StatusConflict, Body: []byte(`{"error":"insufficient stock"}`)}, nil
	}

	_, _, err := guard.Do("key-4", "POST /sales", nil, conflict)
	require.NoError(t, err)

	replay, replayed, err := guard.Do("key-4", "POST /sales", nil, conflict)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, http.StatusConflict, replay.Status)

	boom := errors.New("boom")
	_, _, err = guard.Do("key-5", "POST /sales", nil, func() (Response, error) { return Response{}, boom })
	require.ErrorIs(t, err, boom)

	replay, replayed, err = guard.Do("key-5", "POST /sales", nil, func() (Response, error) { return Response{}, nil })
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, http.StatusInternalServerError, replay.Status)
	require.JSONEq(t, `{"error":"boom"}`, string(replay.Body))
}

func TestGuardRequiresKey(t *testing.T) {
	_, _, err := newGuard().Do("  ", "POST /sales", nil, nil)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestRequestHashScopesByOperation(t *testing.T) {
	require.NotEqual(t, RequestHash("POST /sales", []byte("x")), RequestHash("POST /carts/1/checkout", []byte("x")))
	require.Equal(t, RequestHash("POST /sales", []byte("x")), RequestHash("POST /sales", []byte("x")))
}
