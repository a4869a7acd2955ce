package app

import (
	"context"
	"time"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/pkg/logger"
	"github.com/krawlist/eventengine/pkg/metrics"
)

// Candidate is one scraped record with the source it came from.
type Candidate struct {
	Raw    model.RawEvent
	Source string
}

// CandidatesFrom tags every event of a staging collection with its source.
// Events carrying their own source keep it.
func CandidatesFrom(coll model.EventCollection) []Candidate {
	out := make([]Candidate, 0, len(coll.Events))
	for _, raw := range coll.Events {
		src := raw.Source
		if src == "" {
			src = coll.Source
		}
		out = append(out, Candidate{Raw: raw, Source: src})
	}
	return out
}

// Deduplicate clusters candidates in order and returns merged records and the
// review queue. Candidates that fail to parse are reported and skipped.
func (e *Engine) Deduplicate(ctx context.Context, candidates []Candidate) (*DedupeReport, error) {
	e.batch.Lock()
	defer e.batch.Unlock()

	sess, err := e.newSession(ctx, sessionConfig{clusters: true})
	if err != nil {
		return nil, err
	}
	rep := &DedupeReport{RunID: sess.ID, StartedAt: sess.StartedAt}
	log := e.log.Named("dedupe")
	mgr := sess.Clusters

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			e.metrics.RecordBatch(metrics.BatchDedupe, e.sinceStart(rep.StartedAt), err)
			return nil, err
		}
		rec, err := model.ParseRawEvent(c.Raw)
		if err != nil {
			e.metrics.RecordParseFailure(metrics.StageCandidates)
			log.Warn(ctx, "candidate skipped",
				logger.Int("index", i), logger.String("title", c.Raw.Title), logger.Error(err))
			rep.ParseFailures = append(rep.ParseFailures, ItemFailure{Index: i, Title: c.Raw.Title, Error: err.Error()})
			continue
		}
		e.metrics.RecordParsed(metrics.StageCandidates)
		src := c.Source
		if src == "" {
			src = defaultSource
		}
		mgr.FindOrCreate(rec, src)
	}

	rep.Stats = mgr.Stats()
	rep.Merged = mgr.Merged()
	rep.Review = mgr.Report(false)
	rep.Organizers = mgr.OrganizerPatterns()
	rep.Assignments = mgr.Assignments()
	rep.FinishedAt = e.now()

	review := len(rep.NeedsReview())
	e.metrics.RecordClustering(rep.Stats.Clusters, rep.Stats.FuzzyMatches, rep.Stats.ExactDuplicates, review)
	e.metrics.RecordBatch(metrics.BatchDedupe, rep.FinishedAt.Sub(rep.StartedAt), nil)

	e.recordRun(ctx, repository.RunSummary{
		ID:         rep.RunID,
		Kind:       metrics.BatchDedupe,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Stats:      rep.Stats,
	})
	if ar, ok := e.store.(repository.AssignmentRecorder); ok {
		if err := ar.SaveAssignments(ctx, rep.RunID, rep.Assignments); err != nil {
			log.Warn(ctx, "cluster assignments not saved", logger.String("run_id", rep.RunID), logger.Error(err))
		}
	}

	e.mu.Lock()
	e.lastDedupe = rep
	e.mu.Unlock()

	log.Info(ctx, "deduplication finished",
		logger.String("run_id", rep.RunID),
		logger.Int("records", rep.Stats.Records),
		logger.Int("clusters", rep.Stats.Clusters),
		logger.Int("exact_duplicates", rep.Stats.ExactDuplicates),
		logger.Int("fuzzy_matches", rep.Stats.FuzzyMatches),
		logger.Int("parse_failures", len(rep.ParseFailures)),
		logger.Int("needs_review", review))
	return rep, nil
}

// Publish writes the merged records of rep to the catalog as pending review.
// Records whose identity hash is already in the catalog are skipped.
func (e *Engine) Publish(ctx context.Context, rep *DedupeReport) (*PublishReport, error) {
	e.batch.Lock()
	defer e.batch.Unlock()

	sess, err := e.newSession(ctx, sessionConfig{catalog: true})
	if err != nil {
		return nil, err
	}
	mat := sess.materializer(e, "publish")

	out := &PublishReport{RunID: rep.RunID}
	var pending []Pending
	for _, merged := range rep.Merged {
		rec := publishable(merged)
		p, ok := mat.plan(ctx, rec)
		if !ok {
			out.add(p.Result)
			continue
		}
		pending = append(pending, p)
	}
	for _, p := range pending {
		out.add(mat.Commit(ctx, p))
	}
	return out, nil
}

func publishable(m cluster.Merged) model.EventRecord {
	rec := m.EventRecord.Clone()
	rec.Confidence = m.ConfidenceScore
	if rec.Status == "" {
		rec.Status = model.StatusPendingReview
	}
	return rec
}

func (e *Engine) sinceStart(start time.Time) time.Duration {
	return e.now().Sub(start)
}
