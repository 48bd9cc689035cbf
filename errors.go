package rabbitlink

import "github.com/YouDoCom/rabbit-link/internal/errs"

// Sentinel error kinds callers match with errors.Is, re-exported from
// internal/errs so this module's public API never requires importing
// an internal package.
var (
	ErrCanceled           = errs.ErrCanceled
	ErrDisposed           = errs.ErrDisposed
	ErrNotConnected       = errs.ErrNotConnected
	ErrTransportFailure   = errs.ErrTransportFailure
	ErrBrokerReject       = errs.ErrBrokerReject
	ErrNacked             = errs.ErrNacked
	ErrReturned           = errs.ErrReturned
	ErrPublishTimeout     = errs.ErrPublishTimeout
	ErrConfigurationError = errs.ErrConfigurationError
)

// Typed error families, re-exported as type aliases so errors.As works
// against either this package's name or internal/errs's.
type (
	ConnectionError = errs.ConnectionError
	ChannelError    = errs.ChannelError
	TopologyError   = errs.TopologyError
	PublishError    = errs.PublishError
	ConsumerError   = errs.ConsumerError
)
