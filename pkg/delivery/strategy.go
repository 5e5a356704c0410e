package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
)

// Strategy attempts delivery of one packaged envelope over one channel.
// Implementations must not retry internally; they classify the result and
// return.
type Strategy interface {
	Attempt(ctx context.Context, env *envelope.Envelope, pkg *packaging.DocumentPackage) Outcome
}

// TransportClient is the external transport collaborator for a channel whose
// endpoint is fixed by configuration.
type TransportClient interface {
	Send(ctx context.Context, payload []byte) (externalID string, err error)
}

// Registry maps each channel to its strategy. Strategies are registered at
// startup; lookups after that are lock-free reads in practice, but the map is
// guarded so registration order does not matter.
type Registry struct {
	mu         sync.RWMutex
	strategies map[channel.Channel]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[channel.Channel]Strategy)}
}

// Register binds a strategy to a channel, replacing any previous binding.
func (r *Registry) Register(ch channel.Channel, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[ch] = s
}

// For returns the strategy registered for the channel.
func (r *Registry) For(ch channel.Channel) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[ch]
	return s, ok
}

// Channels returns the channels with a registered strategy.
func (r *Registry) Channels() []channel.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]channel.Channel, 0, len(r.strategies))
	for ch := range r.strategies {
		out = append(out, ch)
	}
	return out
}

// classify maps a transport error to an outcome. Context expiry and network
// timeouts are transient; a transport that marked the error permanent is
// honored; anything unrecognized is treated as transient so the queue gets a
// chance to recover it.
func classify(err error) Outcome {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Permanent(perm.Reason, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient("attempt timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient("transport timeout", err)
	}
	return Transient(fmt.Sprintf("transport error: %v", err), err)
}

// transportStrategy delivers over a channel whose endpoint is fixed.
// DPF, DPV, DPI digital and DPI print all follow this shape.
type transportStrategy struct {
	ch     channel.Channel
	client TransportClient
	logger *slog.Logger
}

// NewTransportStrategy creates the standard strategy for a fixed-endpoint
// channel.
func NewTransportStrategy(ch channel.Channel, client TransportClient, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &transportStrategy{ch: ch, client: client, logger: logger.With("channel", ch.String())}
}

func (s *transportStrategy) Attempt(ctx context.Context, env *envelope.Envelope, pkg *packaging.DocumentPackage) Outcome {
	logger := s.logger.With("conversationId", env.ConversationID, "receiver", env.ReceiverID)

	externalID, err := s.client.Send(ctx, pkg.EncryptedBlob)
	if err != nil {
		outcome := classify(err)
		logger.Warn("delivery attempt failed", "outcome", outcome.String(), "error", err)
		return outcome
	}

	logger.Info("delivered", "externalId", externalID)
	return Success(externalID)
}
