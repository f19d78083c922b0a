package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/app"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/config"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/favourites"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/location"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/postgis"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/source"
	"github.com/spf13/cobra"
)

// deps holds everything a command may need; close releases what was opened
type deps struct {
	cfg    config.Config
	source source.Source
	cache  *source.CachedSource
	store  *favourites.Store
	db     *postgis.DB
}

func (d *deps) close() {
	if d.db != nil {
		d.db.Close()
	}
}

func loadDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg}

	fetcher := source.NewFetcher(cfg.Source.URL, cfg.SourceTimeout())
	d.source = fetcher
	if ttl := cfg.CacheTTL(); ttl > 0 {
		d.cache = source.NewCachedSource(fetcher, ttl)
		d.source = d.cache
	}

	backend, err := d.favouritesBackend(ctx)
	if err != nil {
		d.close()
		return nil, err
	}
	d.store = favourites.NewStore(backend)
	return d, nil
}

func (d *deps) favouritesBackend(ctx context.Context) (favourites.Backend, error) {
	switch d.cfg.Favourites.Backend {
	case config.BackendMemory:
		return favourites.NewMemoryBackend(), nil
	case config.BackendPostgres:
		db, err := d.database(ctx)
		if err != nil {
			return nil, err
		}
		return db.KV(ctx)
	default:
		return favourites.NewFileBackend(d.cfg.Favourites.Dir)
	}
}

// database opens the PostGIS connection on first use
func (d *deps) database(ctx context.Context) (*postgis.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	pg := d.cfg.PostGIS
	db, err := postgis.Open(ctx, postgis.ConnConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostGIS: %w", err)
	}
	d.db = db
	return db, nil
}

func (d *deps) session(cmd *cobra.Command) *app.Session {
	var opts []app.Option
	if d.cfg.Source.SnapshotFile != "" {
		opts = append(opts, app.WithSnapshot(d.cfg.Source.SnapshotFile))
	}
	return app.NewSession(d.source, d.store, userLocation(cmd), opts...)
}

// userLocation uses --lat/--lon only when both were given
func userLocation(cmd *cobra.Command) location.Provider {
	flags := cmd.Flags()
	if !flags.Changed("lat") || !flags.Changed("lon") {
		if flags.Changed("lat") != flags.Changed("lon") {
			log.Println("Both --lat and --lon are needed, ignoring location")
		}
		return location.Denied{}
	}
	return location.FromOptional(&userLat, &userLon)
}
