package errs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEWrapsAndClassifies(t *testing.T) {
	inner := errors.New("boom")
	err := E(KindConnect, "quic.connect", inner)
	require.Error(t, err)
	assert.True(t, Is(err, KindConnect))
	assert.False(t, Is(err, KindStream))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "quic.connect: connect: boom", err.Error())
}

func TestEKeepsInnermostOperation(t *testing.T) {
	inner := E(KindStream, "quic.receive", context.Canceled)
	outer := E(KindStream, "session.greet", inner)
	var e *Error
	require.True(t, errors.As(outer, &e))
	assert.Equal(t, "quic.receive", e.Op)
	assert.ErrorIs(t, outer, context.Canceled)
}

func TestEOuterKindWins(t *testing.T) {
	inner := E(KindStream, "quic.receive", errors.New("reset"))
	outer := E(KindConnect, "ping", inner)
	assert.Equal(t, KindConnect, KindOf(outer))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestErrorfAndNilCause(t *testing.T) {
	err := Errorf(KindConfig, "config.validate", "invalid port %d", 70000)
	assert.EqualError(t, err, "config.validate: config: invalid port 70000")

	err = E(KindPrecondition, "", nil)
	assert.EqualError(t, err, "precondition: precondition error")
}
