package rabbitlink

import (
	"fmt"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/serialization"
)

// ConfigBuilder assembles a Configuration fluently, generalizing the
// teacher's functional-options constructors (rabbitmq.ConnectionOption,
// messaging.PublishOption, ClientOption) into With* methods that return
// the builder itself, terminating in Build.
type ConfigBuilder struct {
	cfg Configuration
}

// NewConfigBuilder starts a builder for url with the defaults below;
// every other field starts at its zero value.
func NewConfigBuilder(url string) *ConfigBuilder {
	return &ConfigBuilder{cfg: Configuration{
		URL:                        url,
		ApplicationID:              "rabbit-link",
		ConnectionTimeout:          30 * time.Second,
		ConnectionRecoveryInterval: 5 * time.Second,
		ChannelRecoveryInterval:    5 * time.Second,
		TopologyRecoveryInterval:   5 * time.Second,
		AutoStart:                  true,
		PublishConfirmTimeout:      10 * time.Second,
		Serializer:                 serialization.NewJSONSerializer(serialization.NewTypeRegistry()),
	}}
}

func (b *ConfigBuilder) WithApplicationID(id string) *ConfigBuilder {
	b.cfg.ApplicationID = id
	return b
}

func (b *ConfigBuilder) WithConnectionName(name string) *ConfigBuilder {
	b.cfg.ConnectionName = name
	return b
}

func (b *ConfigBuilder) WithConnectionTimeout(timeout time.Duration) *ConfigBuilder {
	b.cfg.ConnectionTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithConnectionRecoveryInterval(interval time.Duration) *ConfigBuilder {
	b.cfg.ConnectionRecoveryInterval = interval
	return b
}

func (b *ConfigBuilder) WithChannelRecoveryInterval(interval time.Duration) *ConfigBuilder {
	b.cfg.ChannelRecoveryInterval = interval
	return b
}

func (b *ConfigBuilder) WithTopologyRecoveryInterval(interval time.Duration) *ConfigBuilder {
	b.cfg.TopologyRecoveryInterval = interval
	return b
}

func (b *ConfigBuilder) WithAutoStart(autoStart bool) *ConfigBuilder {
	b.cfg.AutoStart = autoStart
	return b
}

func (b *ConfigBuilder) WithConfirmMode(enabled bool) *ConfigBuilder {
	b.cfg.ConfirmMode = enabled
	return b
}

func (b *ConfigBuilder) WithPrefetchCount(count int) *ConfigBuilder {
	b.cfg.PrefetchCount = count
	return b
}

func (b *ConfigBuilder) WithPublishConfirmTimeout(timeout time.Duration) *ConfigBuilder {
	b.cfg.PublishConfirmTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithSerializer(serializer serialization.Serializer) *ConfigBuilder {
	b.cfg.Serializer = serializer
	return b
}

func (b *ConfigBuilder) WithLoggerFactory(factory LoggerFactory) *ConfigBuilder {
	b.cfg.LoggerFactory = factory
	return b
}

// Build validates the assembled Configuration and returns it, or an
// error wrapping ErrConfigurationError describing the first problem
// found.
func (b *ConfigBuilder) Build() (*Configuration, error) {
	if b.cfg.URL == "" {
		return nil, fmt.Errorf("rabbit-link: url required: %w", errs.ErrConfigurationError)
	}
	if b.cfg.Serializer == nil {
		return nil, fmt.Errorf("rabbit-link: serializer required: %w", errs.ErrConfigurationError)
	}
	if b.cfg.PrefetchCount < 0 {
		return nil, fmt.Errorf("rabbit-link: prefetch count must be >= 0: %w", errs.ErrConfigurationError)
	}
	if b.cfg.LoggerFactory == nil {
		b.cfg.LoggerFactory = func(string) Logger { return NoopLogger() }
	}

	cfg := b.cfg
	return &cfg, nil
}
