package app

import (
	"context"
	"time"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/dedupe"
)

// Session owns the state of one batch run. It is created at the start of a
// run and dropped at its end; nothing in it outlives the run.
type Session struct {
	ID        string
	StartedAt time.Time

	// Clusters is set for deduplication runs.
	Clusters *cluster.Manager
	// Catalog and Index are set when the run read the store.
	Catalog repository.Catalog
	Index   dedupe.Deduper
}

type sessionConfig struct {
	clusters bool
	catalog  bool
}

func (e *Engine) newSession(ctx context.Context, cfg sessionConfig) (*Session, error) {
	s := &Session{ID: e.newID(), StartedAt: e.now()}
	if cfg.clusters {
		s.Clusters = e.clusterManager()
	}
	if cfg.catalog {
		cat, index, err := e.loadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		s.Catalog = cat
		s.Index = index
	}
	return s, nil
}

func (s *Session) materializer(e *Engine, name string) *Materializer {
	return NewMaterializer(e.store, s.Index,
		WithMaterializerLogger(e.log.Named(name)),
		WithMaterializerMetrics(e.metrics))
}
