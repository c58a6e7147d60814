package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptions_EffectiveTimeouts(t *testing.T) {
	var opts Options

	require.Equal(t, DefaultRequestTimeout, opts.EffectiveRequestTimeout())
	require.Equal(t, DefaultHandshakeTimeout, opts.EffectiveHandshakeTimeout())

	disabled := time.Duration(0)
	opts.RequestTimeout = &disabled
	opts.HandshakeTimeout = 5 * time.Second

	require.Zero(t, opts.EffectiveRequestTimeout())
	require.Equal(t, 5*time.Second, opts.EffectiveHandshakeTimeout())
}
