package rabbitlink

import (
	"time"

	"github.com/YouDoCom/rabbit-link/serialization"
)

// LoggerFactory produces a component-scoped Logger, mirroring the
// teacher's habit of naming loggers after the subsystem that owns them
// (e.g. "connection", "producer:orders").
type LoggerFactory func(component string) Logger

// Configuration is immutable once built by ConfigBuilder.Build. Every
// field named here is spec-mandated (spec.md §3); nothing on this
// struct is mutable after construction, matching the ConnectionSupervisor's
// requirement that URL/credentials cannot change after Build.
type Configuration struct {
	URL               string
	ApplicationID     string
	ConnectionName    string
	ConnectionTimeout time.Duration

	ConnectionRecoveryInterval time.Duration
	ChannelRecoveryInterval    time.Duration
	TopologyRecoveryInterval   time.Duration

	AutoStart bool

	ConfirmMode           bool
	PrefetchCount         int
	PublishConfirmTimeout time.Duration

	Serializer    serialization.Serializer
	LoggerFactory LoggerFactory
}
