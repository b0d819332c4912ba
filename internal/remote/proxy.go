package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flynn-ai/vox/internal/action"
	apperrors "github.com/flynn-ai/vox/internal/errors"
	"github.com/flynn-ai/vox/internal/stats"
	"github.com/flynn-ai/vox/pkg/protocol"
)

// TimeoutMessage is returned in place of a result when the peer does not
// answer in time.
const TimeoutMessage = "the action timed out"

// DefaultTimeout bounds a remote call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Sender writes one outbound message to a peer.
type Sender interface {
	Send(ctx context.Context, v any) error
}

// Proxy invokes a single action on a peer.
type Proxy struct {
	name    string
	sender  Sender
	table   *Table
	timeout time.Duration
	stats   *stats.Collector
	logger  *zap.Logger
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithTimeout sets how long Invoke waits for the peer.
func WithTimeout(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithStats records call outcomes in c.
func WithStats(c *stats.Collector) ProxyOption {
	return func(p *Proxy) { p.stats = c }
}

// WithLogger sets the proxy logger.
func WithLogger(logger *zap.Logger) ProxyOption {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProxy creates a proxy for the named action. Results for its calls
// are delivered through table.
func NewProxy(name string, sender Sender, table *Table, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		name:    name,
		sender:  sender,
		table:   table,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the remote action name.
func (p *Proxy) Name() string { return p.name }

// Invoke sends an execute request and waits for its result.
//
// A timeout is not an error: Invoke returns TimeoutMessage. Send failures
// and context cancellation are returned as errors. The correlation id is
// removed from the table on every path.
func (p *Proxy) Invoke(ctx context.Context, params map[string]any) (string, error) {
	id := uuid.NewString()
	msg, err := protocol.NewExecuteAction(p.name, id, params)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeActionInvalid, "encode remote params", apperrors.CategoryPermanent)
	}

	// Registered before sending so a fast peer cannot answer an unknown id.
	ch := p.table.open(id)
	defer p.table.cancel(id)

	log := p.logger.With(zap.String("action", p.name), zap.String("action_id", id))

	if err := p.sender.Send(ctx, msg); err != nil {
		log.Warn("remote send failed", zap.Error(err))
		return "", apperrors.Wrap(err, apperrors.CodeRemoteSendFailed,
			fmt.Sprintf("send %q to peer", p.name), apperrors.CategoryTemporary)
	}
	log.Debug("remote action sent")

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		p.stats.RecordRemoteCall(false)
		return result, nil

	case <-timer.C:
		if !p.table.cancel(id) {
			// The result won the race.
			p.stats.RecordRemoteCall(false)
			return <-ch, nil
		}
		p.stats.RecordRemoteCall(true)
		log.Warn("remote action timed out", zap.Duration("timeout", p.timeout))
		return TimeoutMessage, nil

	case <-ctx.Done():
		if !p.table.cancel(id) {
			p.stats.RecordRemoteCall(false)
			return <-ch, nil
		}
		return "", apperrors.Wrap(ctx.Err(), apperrors.CodeActionTimeout,
			fmt.Sprintf("remote action %q cancelled", p.name), apperrors.CategoryTimeout)
	}
}

// Handler adapts the proxy to an action handler.
func (p *Proxy) Handler() action.Handler {
	return p.Invoke
}
