package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrap_Format(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Client", "ReadTag", "read variable")

	assert.EqualError(t, err, "Client.ReadTag: read variable failed: boom")
	assert.True(t, stderrors.Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Client", "ReadTag", "read"))
	assert.NoError(t, WrapTransient(nil, "Client", "ReadTag", "read"))
	assert.NoError(t, WrapInvalid(nil, "Client", "ReadTag", "read"))
	assert.NoError(t, WrapFatal(nil, "Client", "ReadTag", "read"))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := WrapTransient(ErrConnectionLost, "Client", "WriteTag", "write variable")

	var ce *ClassifiedError
	assert.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Client", ce.Component)
	assert.True(t, stderrors.Is(err, ErrConnectionLost))
}

func TestTaxonomy_Predicates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connection bool
		tag        bool
		timeout    bool
	}{
		{"not connected", ErrNotConnected, true, false, false},
		{"connection lost", ErrConnectionLost, true, false, false},
		{"tag not allowed", ErrTagNotAllowed, false, true, false},
		{"tag wrong direction", fmt.Errorf("wrapped: %w", ErrTagNotWritable), false, true, false},
		{"io exhausted", ErrTagIOFailed, false, true, false},
		{"ack deadline", ErrAckTimeout, false, false, true},
		{"unrelated", stderrors.New("other"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.connection, IsConnection(tt.err))
			assert.Equal(t, tt.tag, IsTag(tt.err))
			assert.Equal(t, tt.timeout, IsTimeout(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrTagValueType))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	// Unknown errors default to transient so callers may retry
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
}

func TestIsTransient_Patterns(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(stderrors.New("device busy")))
	assert.False(t, IsTransient(stderrors.New("value rejected")))
	assert.False(t, IsTransient(nil))
}
