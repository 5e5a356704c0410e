package receipt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/queue"
)

// Config holds reconciler configuration
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{PollInterval: 30 * time.Second}
}

// Reconciler polls each registered receipt source and applies receipts to
// queue entries. A receipt only moves an entry that is SENT or IN_FLIGHT;
// anything else is an anomaly (duplicate, out of order, or data we never
// sent) and is logged without mutation.
//
// Confirmation is issued exactly once per external id. The confirmed-id set
// is kept locally so the loop stays safe even against a source whose Confirm
// is not idempotent.
type Reconciler struct {
	store   queue.Store
	sources []Source
	logger  *slog.Logger

	pollInterval time.Duration

	mu        sync.Mutex
	confirmed map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler over the given queue store and receipt
// sources.
func NewReconciler(store queue.Store, sources []Source, cfg *Config, logger *slog.Logger) *Reconciler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:        store,
		sources:      sources,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		confirmed:    make(map[string]struct{}),
	}
}

// Start begins background receipt polling
func (r *Reconciler) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run()
	r.logger.Info("receipt reconciler started", "poll_interval", r.pollInterval, "sources", len(r.sources))
}

// Stop gracefully stops the reconciler
func (r *Reconciler) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info("receipt reconciler stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.PollOnce(r.ctx)
		}
	}
}

// PollOnce runs one reconciliation pass over every source. Exposed so
// callers can drive reconciliation without the background ticker.
func (r *Reconciler) PollOnce(ctx context.Context) {
	for _, source := range r.sources {
		logger := r.logger.With("channel", source.Channel().String())

		receipts, err := source.Poll(ctx)
		if err != nil {
			logger.Error("receipt poll failed", "error", err)
			continue
		}
		for _, rcpt := range receipts {
			r.apply(ctx, logger, source, rcpt)
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, logger *slog.Logger, source Source, rcpt Receipt) {
	logger = logger.With("conversationId", rcpt.ConversationID, "externalId", rcpt.ExternalID)

	if r.alreadyConfirmed(rcpt.ExternalID) {
		return
	}

	id := queue.EntryID(rcpt.ConversationID, source.Channel())
	applied, err := r.store.RecordReceipt(ctx, id, rcpt.Status == StatusOK, rcpt.ExternalID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			logger.Warn("receipt for unknown conversation", "status", string(rcpt.Status))
		} else {
			logger.Error("failed to record receipt", "error", err)
		}
		return
	}
	if !applied {
		logger.Warn("receipt out of order, entry not SENT or IN_FLIGHT", "status", string(rcpt.Status))
		return
	}

	if err := source.Confirm(ctx, rcpt.ExternalID); err != nil {
		// Leave the id unconfirmed; the receipt reappears on the next poll
		// and RecordReceipt is idempotent for an already-settled entry.
		logger.Error("receipt confirmation failed", "error", err)
		return
	}
	r.markConfirmed(rcpt.ExternalID)
	logger.Info("receipt reconciled", "status", string(rcpt.Status))
}

func (r *Reconciler) alreadyConfirmed(externalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.confirmed[externalID]
	return ok
}

func (r *Reconciler) markConfirmed(externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed[externalID] = struct{}{}
}
