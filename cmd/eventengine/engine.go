package main

import (
	"fmt"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/internal/config"
	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/pkg/logger"
)

// openStore opens the catalog backend selected in c.
func openStore(c *config.Config) (repository.Store, error) {
	switch c.CatalogBackend {
	case config.BackendFiles:
		s, err := repository.NewFileStore(c.EventsDir, repository.WithReadDirs(c.ReadDirs...))
		if err != nil {
			return nil, fmt.Errorf("open file catalog: %w", err)
		}
		return s, nil
	case config.BackendSQLite:
		s, err := repository.NewSQLiteStore(c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite catalog: %w", err)
		}
		return s, nil
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: catalog_backend %q", config.ErrInvalidConfig, c.CatalogBackend)
	}
}

// newEngine opens the catalog and builds an engine configured from c.
func newEngine(c *config.Config) (*app.Engine, error) {
	store, err := openStore(c)
	if err != nil {
		return nil, err
	}
	opts := []app.Option{
		app.WithLogger(logger.Get().Named("engine")),
		app.WithLocation(c.Location()),
		app.WithThreshold(c.MatchThreshold),
		app.WithCompareAllMembers(c.CompareAllMembers),
		app.WithLookaheadDays(c.LookaheadDays),
		app.WithMaxOccurrences(c.MaxOccurrences),
	}
	if len(c.VenueAliases) > 0 {
		opts = append(opts, app.WithVenueResolver(cluster.NewAliasResolver(c.VenueAliases)))
	}
	return app.New(store, opts...), nil
}
