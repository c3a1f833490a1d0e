/*
Package reconcile compares the minutes reported in a time table with the
minutes recorded by the attendance provider.

PURPOSE:
  Turns an ordered list of table columns into an ordered list of results of
  the same length. It never touches rendering; the caller owns the table.

ALGORITHM:
  1. Resolve the employee id once for the whole run
  2. Skip columns without a date or dated after today
  3. Fetch the remaining days concurrently (fan-out/fan-in)
  4. Classify each day: Skipped / Matched / Mismatched, or Failed when its
     fetch failed for a reason other than authentication
  5. Attach note and holiday annotations to non-skipped days

FAILURE MODEL:
  AuthenticationFailed anywhere is terminal for the run: no results are
  returned and stored credentials are invalidated. Any other per-day failure
  only affects that day's column.

IDEMPOTENCY:
  A run holds no state between calls; on failure the caller re-runs it in
  full.

SEE ALSO:
  - markers.go: annotation rules
  - result.go: Column, Result and their rendering
  - attendance/client.go: AttendanceSource implementation
*/
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
)

// AttendanceSource provides attendance data for the signed-in user.
type AttendanceSource interface {
	ResolveEmployeeID(ctx context.Context) (generic.EmployeeID, bool, error)
	FetchWorkRecord(ctx context.Context, employee generic.EmployeeID, date generic.Date) (generic.AttendanceRecord, error)
}

// Invalidator drops stored credentials after an authentication failure.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Option func(*Engine)

func WithInvalidator(i Invalidator) Option { return func(e *Engine) { e.invalidator = i } }

func WithNoteRules(rules []NoteRule) Option { return func(e *Engine) { e.rules = rules } }

// WithConcurrency caps in-flight fetches; 0 means unlimited.
func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the time zone "today" is computed in.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func WithCompanyID(id generic.CompanyID) Option { return func(e *Engine) { e.company = id } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = obs.OrNop(l) } }

func WithMetrics(m *obs.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// Engine is stateless between runs and safe for concurrent use.
type Engine struct {
	source      AttendanceSource
	invalidator Invalidator
	rules       []NoteRule
	concurrency int
	company     generic.CompanyID
	now         func() time.Time
	loc         *time.Location
	log         *zap.Logger
	metrics     *obs.Metrics
}

func NewEngine(source AttendanceSource, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		now:    time.Now,
		loc:    time.Local,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// RUN
// =============================================================================

type runIDKey struct{}

// WithRunID tags ctx with the id Run logs under. Without one Run makes its
// own.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run reconciles columns and returns one result per column, in input order.
func (e *Engine) Run(ctx context.Context, columns []Column) ([]Result, error) {
	runID := RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	log := e.log.With(zap.String("run_id", runID), zap.Int("columns", len(columns)))
	start := time.Now()
	log.Info("reconciliation started")

	employee, ok, err := e.source.ResolveEmployeeID(ctx)
	if err != nil {
		return nil, e.abort(ctx, log, start, err)
	}
	if !ok {
		return nil, e.abort(ctx, log, start, &EmployeeNotFoundError{CompanyID: e.company})
	}

	today := generic.DateOf(e.now().In(e.loc))
	results := make([]Result, len(columns))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, col := range columns {
		if col.Date.IsZero() || col.Date.After(today) {
			results[i] = Result{Column: col, Status: StatusSkipped}
			continue
		}
		g.Go(func() error {
			rec, err := e.source.FetchWorkRecord(gctx, employee, col.Date)
			if err != nil {
				if generic.IsAuthenticationFailed(err) {
					return err
				}
				log.Warn("fetch failed", zap.String("date", col.Date.String()), zap.Error(err))
				results[i] = Result{Column: col, Status: StatusFailed, Err: err}
				return nil
			}
			rec.Date = col.Date
			results[i] = e.evaluate(col, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.abort(ctx, log, start, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.abort(ctx, log, start, err)
	}

	for _, r := range results {
		e.metrics.Column(r.Status.String())
	}
	e.metrics.Run("ok", time.Since(start))
	log.Info("reconciliation finished", zap.Duration("took", time.Since(start)))
	return results, nil
}

func (e *Engine) evaluate(col Column, rec generic.AttendanceRecord) Result {
	worked := rec.WorkedMinutes()
	if worked == 0 && rec.PaidHoliday.IsZero() {
		return Result{Column: col, Status: StatusSkipped}
	}

	res := Result{
		Column:        col,
		Status:        StatusMatched,
		WorkedMinutes: worked,
		Annotations:   annotate(e.rules, rec),
	}
	if col.ReportedMinutes != worked {
		res.Status = StatusMismatched
		res.DeltaMinutes = col.ReportedMinutes - worked
	}
	return res
}

func (e *Engine) abort(ctx context.Context, log *zap.Logger, start time.Time, err error) error {
	outcome := generic.KindOf(err).String()
	if _, ok := err.(*EmployeeNotFoundError); ok {
		outcome = "employee_not_found"
	}
	e.metrics.Run(outcome, time.Since(start))

	if generic.IsAuthenticationFailed(err) && e.invalidator != nil {
		if ierr := e.invalidator.Invalidate(context.WithoutCancel(ctx)); ierr != nil {
			log.Error("failed to invalidate credentials", zap.Error(ierr))
		}
	}
	log.Warn("reconciliation aborted", zap.Error(err))
	return err
}
