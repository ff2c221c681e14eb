package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallErrorMessageFormatsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCallError(KindTransport, "dialing 10.0.0.1:443", cause)

	assert.Equal(t, "corehttp: transport: dialing 10.0.0.1:443: connection refused", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestCallErrorMessageWithoutCause(t *testing.T) {
	err := NewCallError(KindMisuse, "call already executed", nil)
	assert.Equal(t, "corehttp: misuse: call already executed", err.Error())
}

func TestKindOfExtractsClassifiedKind(t *testing.T) {
	err := NewCallError(KindProtocol, "bad frame", nil)
	assert.Equal(t, KindProtocol, KindOf(err))
}

func TestKindOfDefaultsToTransportForUnclassifiedErrors(t *testing.T) {
	assert.Equal(t, KindTransport, KindOf(errors.New("raw net error")))
}

func TestKindOfUnwrapsWrappedCallError(t *testing.T) {
	inner := NewCallError(KindCanceled, "canceled", nil)
	wrapped := errors.New("context: " + inner.Error())
	// A plain fmt/errors.New wrap without %w does not carry the kind.
	assert.Equal(t, KindTransport, KindOf(wrapped))

	viaFmtW := errorsJoin(inner)
	assert.Equal(t, KindCanceled, KindOf(viaFmtW))
}

func errorsJoin(err error) error {
	return errors.Join(err)
}
