package rabbitmq

import (
	"context"
	"crypto/tls"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// Factory opens amqp091-go connections. It implements
// transport.ConnectionFactory.
type Factory struct {
	// TLSClientConfig, when non-nil, is passed through to amqp091-go
	// and selects amqps:// semantics. Nil dials plain TCP.
	TLSClientConfig *tls.Config
	// Heartbeat overrides amqp091-go's default heartbeat interval. Zero
	// keeps the library default.
	Heartbeat time.Duration
	// Locale overrides amqp091-go's default connection locale. Empty
	// keeps the library default ("en_US").
	Locale string
}

// NewFactory returns a Factory dialing with amqp091-go's defaults. Set
// fields on the returned Factory (or construct one directly) to enable
// TLS or override heartbeat/locale.
func NewFactory() *Factory {
	return &Factory{}
}

// Open dials the broker, honoring ctx's deadline in addition to the
// explicit timeout, and returns a Connection wrapping the result.
func (f *Factory) Open(ctx context.Context, url string, connectionName string, timeout time.Duration) (transport.Connection, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg := amqp.Config{
		Properties: amqp.Table{
			"connection_name": connectionName,
		},
		TLSClientConfig: f.TLSClientConfig,
		Heartbeat:       f.Heartbeat,
		Locale:          f.Locale,
	}

	type result struct {
		conn *amqp.Connection
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		conn, err := amqp.DialConfig(url, cfg)
		resultCh <- result{conn, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, &DialError{URL: url, Err: r.err}
		}
		return newConnection(r.conn), nil
	case <-dialCtx.Done():
		// The dial above will still complete in its own goroutine; if it
		// succeeds after we've given up, close it rather than leak it.
		go func() {
			if r := <-resultCh; r.err == nil {
				_ = r.conn.Close()
			}
		}()
		return nil, &DialError{URL: url, Err: dialCtx.Err()}
	}
}
