package referral

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xao-fun/xao-go/internal/metrics"
)

// Recorder persists finished verifications.
type Recorder interface {
	InsertVerification(ctx context.Context, v *Verification) error
}

// Notifier is told about every finished verification.
type Notifier interface {
	NotifyVerification(v *Verification)
}

// Pipeline wraps a Verifier with ids, optional retries, persistence, live
// notification and metrics.
type Pipeline struct {
	verifier    *Verifier
	recorder    Recorder
	notifier    Notifier
	maxRetries  int
	concurrency int
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

type notifiers []Notifier

func (ns notifiers) NotifyVerification(v *Verification) {
	for _, n := range ns {
		n.NotifyVerification(v)
	}
}

// Notifiers combines several notifiers into one, called in order.
func Notifiers(ns ...Notifier) Notifier {
	return notifiers(ns)
}

type PipelineOption func(*Pipeline)

// WithRecorder stores every verification through r.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithNotifier publishes every verification through n.
func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMaxRetries repeats retryable failures up to n extra times.
func WithMaxRetries(n int) PipelineOption {
	return func(p *Pipeline) { p.maxRetries = n }
}

// WithConcurrency bounds VerifyBatch fan-out.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(fn func() backoff.BackOff) PipelineOption {
	return func(p *Pipeline) { p.newBackOff = fn }
}

// NewPipeline creates a pipeline around v. By default it is single-shot,
// stores nothing and notifies nobody.
func NewPipeline(v *Verifier, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		verifier:    v,
		concurrency: 4,
		logger:      logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify runs one verification. On failure the returned Verification is still
// populated (id, error kind) but carries no Result.
func (p *Pipeline) Verify(ctx context.Context, rec Record) (*Verification, error) {
	v := &Verification{
		ID:        uuid.New(),
		Record:    rec,
		Provider:  p.verifier.Provider(),
		Model:     p.verifier.Model(),
		CreatedAt: time.Now().UTC(),
	}
	start := time.Now()

	var lastErr error
	op := func() error {
		v.Attempts++
		if v.Attempts > 1 {
			metrics.VerificationRetries.Inc()
		}
		result, err := p.verifier.Verify(ctx, rec)
		lastErr = err
		if err != nil {
			if IsRetryable(err) {
				p.logger.Debug("verification attempt failed", "id", v.ID, "attempt", v.Attempts, "err", err)
				return err
			}
			return backoff.Permanent(err)
		}
		v.Result = result
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxRetries)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && lastErr != nil {
		// Retry reports the context error when it gives up on a cancelled
		// context; the classifier error is the useful one.
		err = lastErr
	}

	v.DurationMs = float64(time.Since(start).Milliseconds())
	if err != nil {
		v.ErrorKind = KindOf(err)
		v.Error = err.Error()
		metrics.VerificationErrors.WithLabelValues(string(v.ErrorKind)).Inc()
		p.logger.Warn("referral verification failed",
			"id", v.ID,
			"kind", v.ErrorKind,
			"attempts", v.Attempts,
			"err", err,
		)
	} else {
		p.logger.Info("referral verified",
			"id", v.ID,
			"verified", v.Result.Verified,
			"confidence", v.Result.Confidence,
			"model", v.Model,
			"duration_ms", v.DurationMs,
		)
	}
	metrics.Verifications.WithLabelValues(v.Outcome()).Inc()
	metrics.VerificationDuration.WithLabelValues(v.Provider).Observe(v.DurationMs)

	p.publish(ctx, v)
	return v, err
}

// publish hands v to the recorder and notifier. Their failures are logged and
// never change the verdict.
func (p *Pipeline) publish(ctx context.Context, v *Verification) {
	if p.recorder != nil {
		// The caller may already be gone; the record should still land.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := p.recorder.InsertVerification(storeCtx, v); err != nil {
			p.logger.Error("failed to store verification", "id", v.ID, "err", err)
		}
		cancel()
	}
	if p.notifier != nil {
		p.notifier.NotifyVerification(v)
	}
}

// BatchItem is one entry of a VerifyBatch result, in input order.
type BatchItem struct {
	Verification *Verification
	Err          error
}

// VerifyBatch verifies recs concurrently. A failed item never stops its
// siblings.
func (p *Pipeline) VerifyBatch(ctx context.Context, recs []Record) []BatchItem {
	items := make([]BatchItem, len(recs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			v, err := p.Verify(ctx, rec)
			items[i] = BatchItem{Verification: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
