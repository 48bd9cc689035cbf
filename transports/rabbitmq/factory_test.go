package rabbitmq

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YouDoCom/rabbit-link/internal/rabbitmq"
)

func TestNewConnectionFactory_AppliesOptions(t *testing.T) {
	tlsCfg := &tls.Config{ServerName: "broker.internal"}

	f := NewConnectionFactory(
		WithTLS(tlsCfg),
		WithHeartbeat(5*time.Second),
		WithLocale("en_GB"),
	)

	concrete, ok := f.(*rabbitmq.Factory)
	require.True(t, ok)
	assert.Same(t, tlsCfg, concrete.TLSClientConfig)
	assert.Equal(t, 5*time.Second, concrete.Heartbeat)
	assert.Equal(t, "en_GB", concrete.Locale)
}

func TestNewConnectionFactory_NoOptionsLeavesDefaults(t *testing.T) {
	f := NewConnectionFactory()

	concrete, ok := f.(*rabbitmq.Factory)
	require.True(t, ok)
	assert.Nil(t, concrete.TLSClientConfig)
	assert.Zero(t, concrete.Heartbeat)
	assert.Empty(t, concrete.Locale)
}
