package errors

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestTaxonomy_MarksPreserveCause(t *testing.T) {
	cause := &customError{msg: "consumer blew up"}

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		other []func(error) bool
	}{
		{
			name:  "transaction",
			err:   NewTransactionError(cause, "commit"),
			check: IsTransactionError,
			other: []func(error) bool{IsProcessingError, IsTransientIOError, IsFatalConfigError},
		},
		{
			name:  "processing",
			err:   NewProcessingError(cause, "artifact"),
			check: IsProcessingError,
			other: []func(error) bool{IsTransactionError, IsTransientIOError, IsFatalConfigError},
		},
		{
			name:  "transient io",
			err:   NewTransientIOError(cause, "https://example.com"),
			check: IsTransientIOError,
			other: []func(error) bool{IsTransactionError, IsProcessingError, IsFatalConfigError},
		},
		{
			name:  "fatal config",
			err:   NewFatalConfigError(cause),
			check: IsFatalConfigError,
			other: []func(error) bool{IsTransactionError, IsProcessingError, IsTransientIOError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, tt.check(tt.err))
			for _, other := range tt.other {
				assert.False(t, other(tt.err))
			}

			var target *customError
			require.True(t, As(tt.err, &target))
			assert.Equal(t, "consumer blew up", target.msg)
			assert.Contains(t, tt.err.Error(), "consumer blew up")
		})
	}
}

func TestTaxonomy_NilPassesThrough(t *testing.T) {
	assert.NoError(t, NewTransactionError(nil, "commit"))
	assert.NoError(t, NewProcessingError(nil, "page"))
	assert.NoError(t, NewTransientIOError(nil, "x"))
	assert.NoError(t, NewFatalConfigError(nil))
	assert.False(t, IsTransactionError(nil))
}

func TestTaxonomy_SentinelCauseStillMatches(t *testing.T) {
	err := NewProcessingError(Wrap(sql.ErrNoRows, "lookup"), "document")
	assert.True(t, Is(err, sql.ErrNoRows))
	assert.True(t, IsProcessingError(err))
}

func TestFatalConfigError_HasHint(t *testing.T) {
	err := NewFatalConfigError(New("publish.s3.bucket is required"))
	hints := GetAllHints(err)
	require.NotEmpty(t, hints)
	assert.Contains(t, hints[0], "am validate")
}

func TestSecondaryErrorDoesNotChangeIdentity(t *testing.T) {
	primary := New("consumer failed")
	err := WithSecondaryError(primary, New("rollback failed"))

	assert.Equal(t, primary.Error(), err.Error())
	assert.True(t, Is(err, primary))
	assert.Contains(t, fmt.Sprintf("%+v", err), "rollback failed")
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("job %q", "arxiv")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "arxiv")
	assert.False(t, IsNotFoundError(New("something else")))
	assert.False(t, IsNotFoundError(nil))
}

func TestInvalidRequest(t *testing.T) {
	err := NewInvalidRequestError("vector has %d dimensions", 3)
	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "3 dimensions")
}
