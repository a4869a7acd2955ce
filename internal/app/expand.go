package app

import (
	"context"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
	"github.com/krawlist/eventengine/pkg/logger"
	"github.com/krawlist/eventengine/pkg/metrics"
)

// ExpandOption tunes a single expansion run.
type ExpandOption func(*expandRun)

type expandRun struct {
	dryRun bool
}

// DryRun plans instances without writing them.
func DryRun() ExpandOption {
	return func(r *expandRun) { r.dryRun = true }
}

// template is a catalog record carrying a rule, with its compiled form.
type template struct {
	entry  repository.Entry
	rule   recurrence.Rule
	report recurrence.Report
}

// Templates lists the catalog records that carry a recurrence rule, enabled
// or not, with their validation findings.
func (e *Engine) Templates(ctx context.Context) ([]TemplateReport, error) {
	cat, _, err := e.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	tpls := e.compileTemplates(cat)
	out := make([]TemplateReport, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, e.templateReport(t))
	}
	return out, nil
}

func (e *Engine) compileTemplates(cat repository.Catalog) []template {
	var out []template
	for _, entry := range cat.Entries {
		rec := &entry.Record
		if rec.Recurring == nil && rec.RRule == "" {
			continue
		}
		spec := rec.Recurring
		var rrErr error
		if spec == nil {
			parsed, err := recurrence.ParseRRule(rec.RRule, rec.Date)
			if err != nil {
				rrErr = err
			} else {
				spec = &parsed
			}
		}
		var t template
		t.entry = entry
		if rrErr != nil {
			t.report = recurrence.Report{Enabled: true, Errors: []string{"rrule: " + rrErr.Error()}}
		} else {
			t.rule, t.report = recurrence.Compile(spec, rec.Date)
		}
		out = append(out, t)
	}
	return out
}

func (e *Engine) templateReport(t template) TemplateReport {
	rec := &t.entry.Record
	tr := TemplateReport{
		Hash:       rec.Hash(),
		Title:      rec.Title,
		Date:       rec.Date,
		Target:     t.entry.Target,
		Validation: t.report,
	}
	if t.report.Usable() {
		if rr, err := t.rule.RRule(rec.Date); err == nil {
			tr.RRule = rr
		}
	}
	return tr
}

// Expand generates the occurrences of every usable template inside the
// lookahead window and writes the missing instances. All catalog reads
// happen before the first write; one failed write never stops the batch.
func (e *Engine) Expand(ctx context.Context, opts ...ExpandOption) (*ExpansionReport, error) {
	e.batch.Lock()
	defer e.batch.Unlock()

	var run expandRun
	for _, opt := range opts {
		opt(&run)
	}
	start := e.now()
	log := e.log.Named("expand")

	sess, err := e.newSession(ctx, sessionConfig{catalog: true})
	if err != nil {
		e.metrics.RecordBatch(metrics.BatchExpand, e.sinceStart(start), err)
		return nil, err
	}
	cat := sess.Catalog
	rep := &ExpansionReport{RunID: sess.ID, StartedAt: start, Today: e.Today(), DryRun: run.dryRun}
	rep.Stats.Scanned = len(cat.Entries)
	rep.Stats.LoadErrors = len(cat.Failures)
	for _, f := range cat.Failures {
		rep.LoadFailures = append(rep.LoadFailures, ItemFailure{Target: f.Target, Error: f.Err.Error()})
	}

	mat := sess.materializer(e, "expand")

	var pending []Pending
	for _, t := range e.compileTemplates(cat) {
		tr := e.templateReport(t)
		if !t.report.Enabled {
			rep.Templates = append(rep.Templates, tr)
			continue
		}
		rep.Stats.Templates++
		e.metrics.RecordTemplate(t.report.Valid())
		if !t.report.Valid() {
			rep.Stats.InvalidTemplates++
			log.Warn(ctx, "recurrence rule invalid",
				logger.String("hash", tr.Hash),
				logger.String("target", tr.Target),
				logger.Any("errors", t.report.Errors))
			rep.Templates = append(rep.Templates, tr)
			continue
		}

		rec := &t.entry.Record
		horizon := recurrence.Horizon(rep.Today, e.lookaheadDays, t.rule.End)
		res := recurrence.Generate(t.rule, rec.Date, rep.Today, horizon, e.maxOcc)
		tr.Occurrences = len(res.Dates)
		tr.Truncated = res.Truncated
		rep.Stats.Generated += len(res.Dates)
		e.metrics.RecordOccurrences(len(res.Dates), res.Truncated)
		if res.Truncated {
			log.Warn(ctx, "expansion truncated",
				logger.String("hash", tr.Hash), logger.Int("limit", e.maxOcc))
		}
		rep.Templates = append(rep.Templates, tr)

		for _, d := range res.Dates {
			p, ok := mat.Plan(ctx, rec, d)
			if !ok {
				rep.add(p.Result)
				continue
			}
			pending = append(pending, p)
		}
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			e.metrics.RecordBatch(metrics.BatchExpand, e.sinceStart(rep.StartedAt), err)
			return rep, err
		}
		if run.dryRun {
			res := p.Result
			res.Outcome = OutcomeCreated
			res.Reason = "dry run"
			rep.add(res)
			continue
		}
		rep.add(mat.Commit(ctx, p))
	}

	rep.FinishedAt = e.now()
	e.metrics.RecordBatch(metrics.BatchExpand, rep.FinishedAt.Sub(rep.StartedAt), nil)
	if !run.dryRun {
		e.recordRun(ctx, repository.RunSummary{
			ID:         rep.RunID,
			Kind:       metrics.BatchExpand,
			StartedAt:  rep.StartedAt,
			FinishedAt: rep.FinishedAt,
			Stats:      rep.Stats,
		})
	}

	e.mu.Lock()
	e.lastExpand = rep
	e.mu.Unlock()

	log.Info(ctx, "expansion finished",
		logger.String("run_id", rep.RunID),
		logger.String("today", rep.Today.String()),
		logger.Int("scanned", rep.Stats.Scanned),
		logger.Int("templates", rep.Stats.Templates),
		logger.Int("invalid", rep.Stats.InvalidTemplates),
		logger.Int("generated", rep.Stats.Generated),
		logger.Int("created", rep.Stats.Created),
		logger.Int("skipped", rep.Stats.Skipped),
		logger.Int("failed", rep.Stats.Failed),
		logger.Bool("dry_run", run.dryRun))
	return rep, nil
}

// Detect suggests recurrence rules for titles that repeat in the catalog.
func (e *Engine) Detect(ctx context.Context, minOccurrences int) ([]recurrence.Suggestion, error) {
	cat, _, err := e.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if minOccurrences <= 0 {
		minOccurrences = recurrence.DefaultMinOccurrences
	}
	return recurrence.DetectPatterns(cat.Records(), minOccurrences), nil
}

// Records lists the parsed catalog records.
func (e *Engine) Records(ctx context.Context) ([]model.EventRecord, error) {
	cat, _, err := e.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Records(), nil
}
