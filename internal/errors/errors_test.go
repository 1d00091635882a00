package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStorageLocked, CategoryConfig, SeverityFatal, false},
		{ErrCodeUnsupportedType, CategoryIO, SeverityError, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidMode, CategoryValidation, SeverityError, false},
		{ErrCodeIndexFailed, CategoryInternal, SeverityError, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	// Given: domain errors wrapped in fmt.Errorf chains
	notFound := fmt.Errorf("load: %w", NotFound("/x.pdf", nil))
	indexing := fmt.Errorf("ingest: %w", Indexing("embed", stderrors.New("boom")))

	// Then: errors.Is matches by code
	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.NotErrorIs(t, notFound, ErrUnsupportedType)
	assert.ErrorIs(t, indexing, ErrIndexing)
	assert.Equal(t, ErrCodeIndexFailed, GetCode(indexing))
	assert.Contains(t, indexing.Error(), "boom")
}

func TestUnknownBackend_CarriesFamilyAndName(t *testing.T) {
	err := UnknownBackend("graph", "cassandra", []string{"sqlite", "memory"})

	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Equal(t, "graph", err.Details["family"])
	assert.Equal(t, "cassandra", err.Details["name"])
	assert.Contains(t, err.Suggestion, "sqlite")
}

func TestRetryWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, New(ErrCodeNetworkTimeout, "slow", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(ErrCodeProviderRejected, "bad key", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("llm", WithMaxFailures(2), WithResetTimeout(time.Minute),
		WithClock(func() time.Time { return now }))
	fail := func() (string, error) { return "", stderrors.New("down") }

	// When: two consecutive failures
	_, _ = Execute(cb, fail)
	_, _ = Execute(cb, fail)

	// Then: circuit is open and calls short-circuit
	assert.Equal(t, StateOpen, cb.State())
	called := false
	_, err := Execute(cb, func() (string, error) { called = true; return "", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// When: reset timeout elapses and the trial succeeds
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())
	got, err := Execute(cb, func() (string, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(UnsupportedType("/a/b.docx", ".docx"))

	assert.Contains(t, out, "unsupported file type .docx")
	assert.Contains(t, out, "Hint:")
	assert.Contains(t, out, ErrCodeUnsupportedType)
	assert.Contains(t, out, "  extension: .docx\n")

	js, err := FormatJSON(InvalidMode("fuzzy"))
	require.NoError(t, err)
	assert.Contains(t, string(js), `"code":"ERR_407_INVALID_MODE"`)
}
