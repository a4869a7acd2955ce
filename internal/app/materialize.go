package app

import (
	"context"
	"errors"
	"time"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/domain/dedupe"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/pkg/logger"
	"github.com/krawlist/eventengine/pkg/metrics"
)

// Outcome is what happened to one record the engine tried to write.
type Outcome string

// Outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Skip reasons.
const (
	ReasonInCatalog = "already in catalog"
	ReasonCollision = "target already exists"
)

// MaterializeResult is the per-record result of a write attempt.
type MaterializeResult struct {
	Hash    string     `json:"hash"`
	Title   string     `json:"title"`
	Date    model.Date `json:"date"`
	Parent  string     `json:"parent,omitempty"`
	Target  string     `json:"target,omitempty"`
	Outcome Outcome    `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
	Err     error      `json:"-"`
	Error   string     `json:"error,omitempty"`
}

// Pending is a record that passed the index check and still has to be
// written.
type Pending struct {
	Record model.EventRecord
	Result MaterializeResult
}

// Materializer turns occurrence dates into instance records. The hash index
// must contain every record of the catalog, including published and archived
// ones, so that nothing is written twice across runs.
type Materializer struct {
	store   repository.Store
	index   dedupe.Deduper
	log     logger.Logger
	metrics *metrics.Manager
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*Materializer)

// WithMaterializerLogger sets the logger.
func WithMaterializerLogger(l logger.Logger) MaterializerOption {
	return func(m *Materializer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMaterializerMetrics sets the metrics manager.
func WithMaterializerMetrics(mm *metrics.Manager) MaterializerOption {
	return func(m *Materializer) {
		if mm != nil {
			m.metrics = mm
		}
	}
}

// NewMaterializer creates a Materializer writing to store.
func NewMaterializer(store repository.Store, index dedupe.Deduper, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		store:   store,
		index:   index,
		log:     logger.Get().Named("materializer"),
		metrics: metrics.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Instance builds the record for template on date: a copy with the date
// replaced, recurrence removed and the parent link set.
func Instance(template *model.EventRecord, date model.Date) model.EventRecord {
	inst := template.Clone()
	inst.Date = date
	inst.Recurring = nil
	inst.RRule = ""
	inst.RecurringParent = template.Hash()
	return inst
}

// Plan checks the instance of template on date against the index. It returns
// ok=false with a Skipped result when the instance is already known;
// otherwise the hash is recorded and the pending write is returned.
func (m *Materializer) Plan(ctx context.Context, template *model.EventRecord, date model.Date) (Pending, bool) {
	inst := Instance(template, date)
	return m.plan(ctx, inst)
}

func (m *Materializer) plan(ctx context.Context, rec model.EventRecord) (Pending, bool) {
	res := MaterializeResult{
		Hash:   rec.Hash(),
		Title:  rec.Title,
		Date:   rec.Date,
		Parent: rec.RecurringParent,
	}
	if m.index.SeenAndRecord(ctx, res.Hash) {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonInCatalog
		m.metrics.RecordInstance(metrics.OutcomeSkipped)
		return Pending{Result: res}, false
	}
	return Pending{Record: rec, Result: res}, true
}

// Commit writes a planned record. A store collision counts as Skipped; any
// other store error is Failed and the hash is released so that a later run
// retries it.
func (m *Materializer) Commit(ctx context.Context, p Pending) MaterializeResult {
	res := p.Result
	start := time.Now()
	target, err := m.store.Put(ctx, p.Record)
	m.metrics.RecordStoreLatency("put", time.Since(start))
	res.Target = target

	switch {
	case err == nil:
		res.Outcome = OutcomeCreated
		m.metrics.RecordInstance(metrics.OutcomeCreated)
		m.log.Debug(ctx, "record written",
			logger.String("hash", res.Hash), logger.String("target", target))
	case errors.Is(err, repository.ErrAlreadyExists):
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonCollision
		m.metrics.RecordInstance(metrics.OutcomeSkipped)
	default:
		m.index.Unrecord(ctx, res.Hash)
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Error = err.Error()
		m.metrics.RecordInstance(metrics.OutcomeFailed)
		m.log.Error(ctx, "record write failed",
			logger.String("hash", res.Hash), logger.String("target", target), logger.Error(err))
	}
	return res
}

// Materialize plans and immediately commits the instance of template on
// date.
func (m *Materializer) Materialize(ctx context.Context, template *model.EventRecord, date model.Date) MaterializeResult {
	p, ok := m.Plan(ctx, template, date)
	if !ok {
		return p.Result
	}
	return m.Commit(ctx, p)
}
