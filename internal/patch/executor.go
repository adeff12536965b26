package patch

import (
	"context"
	"time"

	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// Patcher is the update capability of the item-tracking service.
type Patcher interface {
	PatchItem(ctx context.Context, id string, ops []tracker.Operation) error
}

// Failure records one request that did not apply.
type Failure struct {
	Row      int         `json:"row" yaml:"row"`
	TargetID string      `json:"target_id" yaml:"target_id"`
	Kind     FailureKind `json:"kind" yaml:"kind"`
	Reason   string      `json:"reason" yaml:"reason"`
	Err      error       `json:"-" yaml:"-"`
}

// Report summarizes a batch.
type Report struct {
	Attempted int       `json:"attempted" yaml:"attempted"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Failed    int       `json:"failed" yaml:"failed"`
	Failures  []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Started   time.Time `json:"started" yaml:"started"`
	Finished  time.Time `json:"finished" yaml:"finished"`
}

// Duration returns how long the batch ran.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Applier applies a batch of requests.
type Applier interface {
	Apply(ctx context.Context, requests []Request) *Report
}

// Executor applies requests in order. A failed request is recorded and the
// batch continues with the next one.
type Executor struct {
	patcher Patcher
	now     func() time.Time
}

// NewExecutor returns an executor that sends updates through p.
func NewExecutor(p Patcher) *Executor {
	return &Executor{patcher: p, now: time.Now}
}

// Apply sends every request once. If ctx is canceled the remaining requests
// are recorded as failed without being sent, so the report accounts for all
// of them.
func (e *Executor) Apply(ctx context.Context, requests []Request) *Report {
	report := &Report{Started: e.now()}
	ctx = logging.WithOperation(ctx, "patch")

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			for _, rest := range requests[i:] {
				report.fail(rest, errors.ErrCanceled)
			}
			logging.FromContext(ctx).Warn().Err(err).Int("remaining", len(requests)-i).Msg("Batch canceled")
			break
		}

		itemCtx := logging.WithItem(logging.WithRow(ctx, req.Row), req.TargetID)
		logger := logging.FromContext(itemCtx)

		report.Attempted++
		err := e.patcher.PatchItem(itemCtx, req.TargetID, []tracker.Operation{req.Operation})
		if err != nil {
			f := report.fail(req, err)
			logger.Error().
				Err(err).
				Str("kind", string(f.Kind)).
				Str("path", req.Operation.Path).
				Msg("Failed to update item")
			continue
		}

		report.Succeeded++
		logger.Info().
			Str("path", req.Operation.Path).
			Str("value", req.Operation.Value).
			Msg("Updated item")
	}

	report.Finished = e.now()
	return report
}

func (r *Report) fail(req Request, err error) Failure {
	f := Failure{
		Row:      req.Row,
		TargetID: req.TargetID,
		Kind:     Classify(err),
		Reason:   err.Error(),
		Err:      err,
	}
	r.Failed++
	r.Failures = append(r.Failures, f)
	return f
}

// FailureKind groups update failures by cause.
type FailureKind string

const (
	KindCanceled     FailureKind = "canceled"
	KindUnauthorized FailureKind = "unauthorized"
	KindNotFound     FailureKind = "not_found"
	KindRateLimited  FailureKind = "rate_limited"
	KindUnavailable  FailureKind = "unavailable"
	KindRejected     FailureKind = "rejected"
)

// Classify maps an update error to its kind.
func Classify(err error) FailureKind {
	switch {
	case errors.IsCanceled(err):
		return KindCanceled
	case errors.IsUnauthorized(err):
		return KindUnauthorized
	case errors.IsNotFound(err):
		return KindNotFound
	case errors.IsRateLimited(err):
		return KindRateLimited
	case errors.IsServiceUnavailable(err):
		return KindUnavailable
	default:
		return KindRejected
	}
}

// DryRun logs each request instead of sending it.
type DryRun struct{}

// Apply logs the requests and reports nothing attempted.
func (DryRun) Apply(ctx context.Context, requests []Request) *Report {
	now := time.Now()
	for _, req := range requests {
		logging.FromContext(logging.WithItem(logging.WithRow(ctx, req.Row), req.TargetID)).Info().
			Str("op", req.Operation.Op).
			Str("path", req.Operation.Path).
			Str("value", req.Operation.Value).
			Msg("Would update item")
	}
	return &Report{Started: now, Finished: now}
}
