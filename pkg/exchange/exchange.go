package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/delivery"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/queue"
)

var (
	// ErrEmptyPayload is returned for submissions without payload files
	// when accepting them is not switched on.
	ErrEmptyPayload = errors.New("submission has no payload files")
	// ErrNoCertificate is returned when the receiver has no encryption
	// certificate registered.
	ErrNoCertificate = errors.New("receiver has no certificate registered")
)

// Submission is one outbound message as handed over by the local system.
type Submission struct {
	SenderID   string
	ReceiverID string
	// ConversationID ties the message to an existing conversation.
	// Empty means a new conversation is started.
	ConversationID string
	DocumentType   envelope.DocumentType
	// PayloadRef is the caller's opaque reference to the payload.
	PayloadRef string
	Files      []packaging.File
}

// Result reports what Submit did with a submission.
type Result struct {
	ConversationID string
	// Channel is the channel the message was enqueued on. Empty when
	// nothing was enqueued.
	Channel channel.Channel
	// Enqueued is false when the submission was accepted but intentionally
	// not queued: an empty payload under the accept toggle, or an
	// application receipt the rules discard.
	Enqueued bool
}

// Config holds the collaborators of a Service.
type Config struct {
	Selector  *channel.Selector
	Lookup    channel.CapabilityLookup
	Packager  *packaging.Packager
	Scheduler *queue.Scheduler
	Rules     delivery.ReceiptRules
	// Backoff is the retry rule attached to enqueued entries. Nil means
	// the scheduler's default applies.
	Backoff queue.BackoffRule
	// AcceptEmptyPayload reports success for submissions without files
	// instead of rejecting them.
	AcceptEmptyPayload bool
	Logger             *slog.Logger
}

// Service accepts submissions and pushes them through the outbound pipeline.
type Service struct {
	selector    *channel.Selector
	lookup      channel.CapabilityLookup
	packager    *packaging.Packager
	scheduler   *queue.Scheduler
	rules       delivery.ReceiptRules
	backoff     queue.BackoffRule
	acceptEmpty bool
	logger      *slog.Logger
}

// NewService creates a submission service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Selector == nil {
		return nil, errors.New("selector is required")
	}
	if cfg.Lookup == nil {
		return nil, errors.New("capability lookup is required")
	}
	if cfg.Packager == nil {
		return nil, errors.New("packager is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		selector:    cfg.Selector,
		lookup:      cfg.Lookup,
		packager:    cfg.Packager,
		scheduler:   cfg.Scheduler,
		rules:       cfg.Rules,
		backoff:     cfg.Backoff,
		acceptEmpty: cfg.AcceptEmptyPayload,
		logger:      logger.With("component", "exchange"),
	}, nil
}

// Submit runs the outbound pipeline for one submission and returns once the
// message is durably enqueued for its selected channel. Transmission and
// retries happen asynchronously afterwards.
//
// Application receipts may be discarded or re-addressed by the receipt
// rules; a discarded receipt is a successful submission with Enqueued false.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if len(sub.Files) == 0 {
		if !s.acceptEmpty {
			return nil, ErrEmptyPayload
		}
		s.logger.Info("accepting submission without payload",
			"conversationId", sub.ConversationID,
			"receiver", sub.ReceiverID)
		return &Result{ConversationID: sub.ConversationID}, nil
	}

	env, err := envelope.New(sub.SenderID, sub.ReceiverID, sub.DocumentType, sub.PayloadRef,
		envelope.WithConversationID(sub.ConversationID))
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		"conversationId", env.ConversationID,
		"receiver", env.ReceiverID,
		"documentType", string(env.DocumentType))

	// Receipts addressed to the fallback sender are dropped before any
	// registry lookup; the fallback identity has no registration to resolve.
	if s.rules.IsFallbackReceipt(*env) {
		logger.Info("discarding receipt addressed to fallback sender")
		return &Result{ConversationID: env.ConversationID}, nil
	}

	channels, err := s.selector.Select(ctx, env.ReceiverID, env.DocumentType)
	if err != nil {
		return nil, err
	}
	selected := channels[0]

	final, keep := s.rules.Apply(*env, selected)
	if !keep {
		return &Result{ConversationID: env.ConversationID}, nil
	}

	caps, err := s.lookup.Lookup(ctx, final.ReceiverID)
	if err != nil {
		return nil, &channel.LookupError{ReceiverID: final.ReceiverID, Err: err}
	}
	if caps.Certificate == nil {
		return nil, fmt.Errorf("receiver %s: %w", final.ReceiverID, ErrNoCertificate)
	}

	pkg, err := s.packager.Package(ctx, &final, sub.Files, caps.Certificate)
	if err != nil {
		return nil, fmt.Errorf("packaging conversation %s: %w", final.ConversationID, err)
	}

	if err := s.scheduler.Enqueue(ctx, selected, final, pkg, s.backoff); err != nil {
		return nil, fmt.Errorf("enqueueing conversation %s: %w", final.ConversationID, err)
	}

	logger.Info("submission enqueued", "channel", selected.String())
	return &Result{
		ConversationID: final.ConversationID,
		Channel:        selected,
		Enqueued:       true,
	}, nil
}

// CanReceive reports whether the receiver can be sent the given document
// type at all. Person numbers and unregistered receivers cannot.
func (s *Service) CanReceive(ctx context.Context, receiverID string, docType envelope.DocumentType) bool {
	return s.selector.CanReceive(ctx, receiverID, docType)
}
