package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewDevelopment(t *testing.T) {
	logger, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger)
}

func TestComponentOnNil(t *testing.T) {
	var l *Logger
	child := l.Component("store")
	require.NotNil(t, child)
	child.Info("discarded")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := NewNop()
	assert.Same(t, l, OrNop(l))
}
