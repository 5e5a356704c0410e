package delivery

import (
	"context"
	"log/slog"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
)

// EndpointResolver resolves the receiver's transport endpoint from the
// service registry. DPO endpoints vary per receiver, unlike the other
// channels whose endpoints are fixed by configuration.
type EndpointResolver interface {
	LookupEndpoint(ctx context.Context, orgnr string) (string, error)
}

// EndpointClient is a transport collaborator that takes the endpoint per
// call.
type EndpointClient interface {
	SendTo(ctx context.Context, endpoint string, payload []byte) (externalID string, err error)
}

type dpoStrategy struct {
	resolver EndpointResolver
	client   EndpointClient
	logger   *slog.Logger
}

// NewDPOStrategy creates the agency-to-agency strategy. The receiver's
// endpoint is resolved through the registry on every attempt so a receiver
// that moved between attempts is still reached.
func NewDPOStrategy(resolver EndpointResolver, client EndpointClient, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &dpoStrategy{
		resolver: resolver,
		client:   client,
		logger:   logger.With("channel", channel.DPO.String()),
	}
}

func (s *dpoStrategy) Attempt(ctx context.Context, env *envelope.Envelope, pkg *packaging.DocumentPackage) Outcome {
	logger := s.logger.With("conversationId", env.ConversationID, "receiver", env.ReceiverID)

	endpoint, err := s.resolver.LookupEndpoint(ctx, env.ReceiverID)
	if err != nil {
		outcome := classify(err)
		logger.Warn("endpoint resolution failed", "outcome", outcome.String(), "error", err)
		return outcome
	}

	externalID, err := s.client.SendTo(ctx, endpoint, pkg.EncryptedBlob)
	if err != nil {
		outcome := classify(err)
		logger.Warn("delivery attempt failed", "endpoint", endpoint, "outcome", outcome.String(), "error", err)
		return outcome
	}

	logger.Info("delivered", "endpoint", endpoint, "externalId", externalID)
	return Success(externalID)
}
