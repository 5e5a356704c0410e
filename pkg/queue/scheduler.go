package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/delivery"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
)

// Config holds scheduler configuration
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	Workers        int
	AttemptTimeout time.Duration
	DefaultBackoff BackoffRule
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   10 * time.Second,
		BatchSize:      20,
		Workers:        4,
		AttemptTimeout: time.Minute,
		DefaultBackoff: ExponentialBackoff{Initial: time.Minute, Max: time.Hour, MaxAttempts: 10},
	}
}

// Scheduler drives delivery attempts for due entries. It polls the store,
// claims entries with a compare-and-set so concurrent schedulers never
// double-send, and dispatches attempts to a bounded worker pool.
type Scheduler struct {
	store      Store
	strategies *delivery.Registry
	logger     *slog.Logger

	pollInterval   time.Duration
	batchSize      int
	workers        int
	attemptTimeout time.Duration
	defaultBackoff BackoffRule

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given store and strategy
// registry.
func NewScheduler(store Store, strategies *delivery.Registry, cfg *Config, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaultBackoff := cfg.DefaultBackoff
	if defaultBackoff == nil {
		defaultBackoff = DefaultConfig().DefaultBackoff
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:          store,
		strategies:     strategies,
		logger:         logger,
		pollInterval:   cfg.PollInterval,
		batchSize:      cfg.BatchSize,
		workers:        workers,
		attemptTimeout: cfg.AttemptTimeout,
		defaultBackoff: defaultBackoff,
	}
}

// Enqueue records a new delivery for the conversation on the given channel.
// Enqueuing an id that is already PENDING or IN_FLIGHT is a no-op; the
// checksum recorded here is what every later attempt is verified against.
func (s *Scheduler) Enqueue(ctx context.Context, ch channel.Channel, env envelope.Envelope, pkg *packaging.DocumentPackage, rule BackoffRule) error {
	now := time.Now()
	e := &Entry{
		ID:             EntryID(env.ConversationID, ch),
		ConversationID: env.ConversationID,
		Channel:        ch,
		Envelope:       env,
		Package:        pkg,
		Checksum:       pkg.Checksum,
		Status:         StatusPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		Backoff:        rule,
	}
	inserted, err := s.store.Enqueue(ctx, e)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("entry already queued", "entry", e.ID)
	}
	return nil
}

// Start begins background queue processing
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	s.logger.Info("queue scheduler started", "poll_interval", s.pollInterval, "workers", s.workers)
}

// Stop gracefully stops the scheduler. In-flight attempts run to completion;
// their outcomes are applied through the store's stale-outcome guard.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("queue scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.ProcessDue(s.ctx)
		}
	}
}

// ProcessDue runs one scheduling pass: claim due entries and attempt them on
// the worker pool. Exposed so callers can drive the queue without the
// background ticker.
func (s *Scheduler) ProcessDue(ctx context.Context) {
	due, err := s.store.Due(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to list due entries", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	jobs := make(chan *Entry)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				s.attempt(ctx, e)
			}
		}()
	}
	for _, e := range due {
		jobs <- e
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) attempt(ctx context.Context, due *Entry) {
	logger := s.logger.With("entry", due.ID, "channel", due.Channel.String(), "conversationId", due.ConversationID)

	e, claimed, err := s.store.MarkInFlight(ctx, due.ID)
	if err != nil {
		logger.Error("failed to claim entry", "error", err)
		return
	}
	if !claimed {
		// Another worker or scheduler instance got there first.
		return
	}

	if e.Package == nil || packaging.Checksum(e.Package.EncryptedBlob) != e.Checksum {
		actual := ""
		if e.Package != nil {
			actual = packaging.Checksum(e.Package.EncryptedBlob)
		}
		intErr := &IntegrityError{ID: e.ID, Expected: e.Checksum, Actual: actual}
		logger.Error("integrity check failed, not transmitting", "error", intErr)
		if err := s.store.Fail(ctx, e.ID, intErr.Error()); err != nil {
			logger.Error("failed to mark entry failed", "error", err)
		}
		return
	}

	strategy, ok := s.strategies.For(e.Channel)
	if !ok {
		logger.Error("no strategy registered for channel")
		if err := s.store.Abandon(ctx, e.ID, "no strategy for channel "+e.Channel.String()); err != nil {
			logger.Error("failed to abandon entry", "error", err)
		}
		return
	}

	attemptCtx := ctx
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}

	attemptedAt := time.Now()
	outcome := strategy.Attempt(attemptCtx, &e.Envelope, e.Package)
	s.applyOutcome(ctx, logger, e, outcome, attemptedAt)
}

func (s *Scheduler) applyOutcome(ctx context.Context, logger *slog.Logger, e *Entry, outcome delivery.Outcome, attemptedAt time.Time) {
	attempt := e.AttemptCount + 1

	switch outcome.Kind {
	case delivery.KindSuccess:
		if err := s.store.Complete(ctx, e.ID, outcome.ExternalID); err != nil {
			logger.Error("failed to complete entry", "error", err)
			return
		}
		logger.Info("entry sent", "attempt", attempt, "externalId", outcome.ExternalID)

	case delivery.KindTransient:
		rule := e.Backoff
		if rule == nil {
			rule = s.defaultBackoff
		}
		delay, ok := rule.NextDelay(attempt)
		if !ok {
			if err := s.store.Abandon(ctx, e.ID, "retries exhausted: "+outcome.Reason); err != nil {
				logger.Error("failed to abandon entry", "error", err)
				return
			}
			logger.Warn("entry abandoned, retries exhausted", "attempt", attempt, "reason", outcome.Reason)
			s.cascade(ctx, logger, e)
			return
		}
		next := attemptedAt.Add(delay)
		if err := s.store.Reschedule(ctx, e.ID, attempt, attemptedAt, next, outcome.Reason); err != nil {
			logger.Error("failed to reschedule entry", "error", err)
			return
		}
		logger.Info("entry scheduled for retry", "attempt", attempt, "next_attempt", next, "reason", outcome.Reason)

	case delivery.KindPermanent:
		if err := s.store.Abandon(ctx, e.ID, outcome.Reason); err != nil {
			logger.Error("failed to abandon entry", "error", err)
			return
		}
		logger.Warn("entry abandoned, permanent failure", "attempt", attempt, "reason", outcome.Reason)
		s.cascade(ctx, logger, e)
	}
}

// cascade enqueues the fallback channel after a non-terminal channel gives
// up, e.g. digital mailbox delivery falling back to print.
func (s *Scheduler) cascade(ctx context.Context, logger *slog.Logger, e *Entry) {
	next, ok := e.Channel.FallsBackTo()
	if !ok {
		return
	}
	fallback := &Entry{
		ID:             EntryID(e.ConversationID, next),
		ConversationID: e.ConversationID,
		Channel:        next,
		Envelope:       e.Envelope,
		Package:        e.Package,
		Checksum:       e.Checksum,
		Status:         StatusPending,
		NextAttemptAt:  time.Now(),
		CreatedAt:      time.Now(),
		Backoff:        e.Backoff,
	}
	inserted, err := s.store.Enqueue(ctx, fallback)
	if err != nil {
		logger.Error("failed to enqueue fallback entry", "fallback_channel", next.String(), "error", err)
		return
	}
	if inserted {
		logger.Info("cascaded to fallback channel", "fallback_channel", next.String())
	}
}
