// Package reconcile drives a full run: extract rows, resolve identifiers when
// needed, build one update per resolved row and apply the batch.
package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/internal/patch"
	"github.com/agentstation/itemtype/internal/resolver"
	"github.com/agentstation/itemtype/internal/rows"
	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// Mode says how CSV keys become item identifiers.
type Mode string

const (
	// ModeDirect treats CSV cells as item identifiers.
	ModeDirect Mode = "direct"
	// ModeLookup resolves CSV cells through a search.
	ModeLookup Mode = "lookup"
)

// Side names which key of a row failed to resolve.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// Resolver resolves one key value.
type Resolver interface {
	Resolve(ctx context.Context, field, value string) resolver.Outcome
}

// Skip is a row that produced no update.
type Skip struct {
	Row     int                     `json:"row" yaml:"row"`
	Side    Side                    `json:"side" yaml:"side"`
	Key     string                  `json:"key" yaml:"key"`
	Reason  errors.ResolutionReason `json:"reason" yaml:"reason"`
	Matches int                     `json:"matches,omitempty" yaml:"matches,omitempty"`
	Message string                  `json:"message" yaml:"message"`
}

// Result is the outcome of a run.
type Result struct {
	RunID    string          `json:"run_id" yaml:"run_id"`
	Mode     Mode            `json:"mode" yaml:"mode"`
	DryRun   bool            `json:"dry_run" yaml:"dry_run"`
	RowsRead int             `json:"rows_read" yaml:"rows_read"`
	Queries  int64           `json:"queries" yaml:"queries"`
	Skipped  []Skip          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Requests []patch.Request `json:"requests,omitempty" yaml:"requests,omitempty"`
	Report   *patch.Report   `json:"report" yaml:"report"`
}

// Runner runs one reconciliation.
type Runner struct {
	settings    config.Settings
	resolver    Resolver
	applier     patch.Applier
	concurrency int
	dryRun      bool
	newRunID    func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of rows resolved at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		if n > constants.MaxConcurrency {
			n = constants.MaxConcurrency
		}
		r.concurrency = n
	}
}

// WithDryRun replaces the applier with one that only logs.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithRunID fixes the run id.
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.newRunID = func() string { return id }
	}
}

// New returns a runner. res may be nil in direct-identifier mode.
func New(settings config.Settings, res Resolver, applier patch.Applier, opts ...Option) *Runner {
	r := &Runner{
		settings:    settings,
		resolver:    res,
		applier:     applier,
		concurrency: constants.DefaultConcurrency,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dryRun {
		r.applier = patch.DryRun{}
	}
	return r
}

// Mode returns the identifier mode of the configured settings.
func (r *Runner) Mode() Mode {
	if r.settings.UsingDirectIdentifiers {
		return ModeDirect
	}
	return ModeLookup
}

// Run executes the run. Configuration and file errors are returned before
// any call to the service. Row-level and item-level failures are reported in
// the Result and never returned as errors.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:  r.newRunID(),
		Mode:   r.Mode(),
		DryRun: r.dryRun,
	}
	ctx = logging.WithRunID(ctx, result.RunID)
	logger := logging.FromContext(ctx)

	if err := r.settings.Validate(); err != nil {
		return nil, err
	}
	if r.Mode() == ModeLookup && r.resolver == nil {
		return nil, errors.NewConfigError("reconcile", "lookup mode requires a resolver", nil)
	}

	extracted, err := rows.Extract(r.settings.CSVFilePath, r.settings.SourceHeader, r.settings.DestinationHeader)
	if err != nil {
		return nil, err
	}
	result.RowsRead = len(extracted)
	logger.Info().
		Str("file", r.settings.CSVFilePath).
		Int("rows", len(extracted)).
		Str("mode", string(result.Mode)).
		Msg("Read rows")

	plans, err := r.plan(ctx, extracted)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.skip != nil {
			result.Skipped = append(result.Skipped, *p.skip)
			continue
		}
		result.Requests = append(result.Requests, p.request)
	}
	if q, ok := r.resolver.(interface{ Queries() int64 }); ok {
		result.Queries = q.Queries()
	}

	result.Report = r.applier.Apply(ctx, result.Requests)

	logger.Info().
		Int("rows", result.RowsRead).
		Int("skipped", len(result.Skipped)).
		Int("requests", len(result.Requests)).
		Int("succeeded", result.Report.Succeeded).
		Int("failed", result.Report.Failed).
		Dur("elapsed", result.Report.Duration()).
		Msg("Run finished")
	return result, nil
}

// rowPlan is either a request or a skip.
type rowPlan struct {
	request patch.Request
	skip    *Skip
}

// plan turns rows into requests, keeping row order.
func (r *Runner) plan(ctx context.Context, extracted []rows.Row) ([]rowPlan, error) {
	plans := make([]rowPlan, len(extracted))

	if r.Mode() == ModeDirect {
		for i, row := range extracted {
			plans[i] = r.planDirect(ctx, row)
		}
		return plans, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, row := range extracted {
		i, row := i, row
		g.Go(func() error {
			plans[i] = r.planLookup(gctx, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapResource("resolve", "rows", r.settings.CSVFilePath, err)
	}
	return plans, nil
}

func (r *Runner) planDirect(ctx context.Context, row rows.Row) rowPlan {
	for _, side := range []struct {
		side Side
		key  string
	}{{SideSource, row.SourceKey}, {SideDestination, row.DestinationKey}} {
		if side.key == "" {
			o := resolver.Outcome{Reason: errors.ReasonEmptyKey, Field: string(side.side)}
			return r.skip(ctx, row, side.side, o)
		}
	}
	req := patch.Build(r.settings.DestinationField, row.SourceKey, row.DestinationKey)
	req.Row = row.Index
	return rowPlan{request: req}
}

// planLookup resolves the source first; the destination is only looked up
// when the source resolved.
func (r *Runner) planLookup(ctx context.Context, row rows.Row) rowPlan {
	src := r.resolver.Resolve(ctx, r.settings.SourceFieldName, row.SourceKey)
	sourceID, ok := src.OK()
	if !ok {
		return r.skip(ctx, row, SideSource, src)
	}

	dst := r.resolver.Resolve(ctx, r.settings.DestinationFieldName, row.DestinationKey)
	destinationID, ok := dst.OK()
	if !ok {
		return r.skip(ctx, row, SideDestination, dst)
	}

	req := patch.Build(r.settings.DestinationField, sourceID, destinationID)
	req.Row = row.Index
	return rowPlan{request: req}
}

func (r *Runner) skip(ctx context.Context, row rows.Row, side Side, o resolver.Outcome) rowPlan {
	key := row.SourceKey
	if side == SideDestination {
		key = row.DestinationKey
	}
	err := o.Err()
	s := &Skip{
		Row:     row.Index,
		Side:    side,
		Key:     key,
		Reason:  o.Reason,
		Matches: o.Matches,
		Message: err.Error(),
	}

	logger := logging.FromContext(logging.WithRow(ctx, row.Index))
	var event *zerolog.Event
	if errors.IsNotFound(err) || errors.IsAmbiguous(err) {
		event = logger.Warn().Int("matches", o.Matches)
	} else {
		event = logger.Error().Err(o.Cause)
	}
	event.
		Str("side", string(side)).
		Str("key", key).
		Str("reason", string(o.Reason)).
		Msg("Skipping row")
	return rowPlan{skip: s}
}
