package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qda-harvester/internal/classify"
	"github.com/sells-group/qda-harvester/internal/files"
	"github.com/sells-group/qda-harvester/internal/harvest"
	"github.com/sells-group/qda-harvester/internal/source"
	"github.com/sells-group/qda-harvester/internal/store"
)

// initStore opens the configured store and applies migrations. Callers must
// close it.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Paths.Resolve(cfg.Store.DatabaseURL))
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func sourceOptions() source.Options {
	return source.Options{
		UserAgent:       cfg.Harvest.UserAgent,
		Timeout:         time.Duration(cfg.Harvest.TimeoutSecs) * time.Second,
		DownloadTimeout: time.Duration(cfg.Harvest.DownloadTimeoutSecs) * time.Second,
	}
}

func initRegistry() (*source.Registry, error) {
	return source.NewRegistry(sourceOptions())
}

// harvestEnv holds what the harvest and collect-all commands share.
type harvestEnv struct {
	Store    store.Store
	Registry *source.Registry
	Driver   *harvest.Driver
}

// Close releases the store.
func (he *harvestEnv) Close() {
	if he.Store != nil {
		_ = he.Store.Close()
	}
}

// initHarvest validates the config and wires store, registry and pipeline.
// sizeCapMB overrides the configured cap when non-negative; limit overrides
// the configured per-query limit when positive. A non-empty only narrows the
// registry to those keys, in the given order.
func initHarvest(ctx context.Context, sizeCapMB, limit int, only []string) (*harvestEnv, error) {
	if sizeCapMB >= 0 {
		cfg.Harvest.MaxFileSizeMB = sizeCapMB
	}
	if limit > 0 {
		cfg.Harvest.Limit = limit
	}
	if err := cfg.Validate("harvest"); err != nil {
		return nil, err
	}

	downloads := cfg.Paths.Resolve(cfg.Paths.Downloads)
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		return nil, eris.Wrap(err, "create downloads directory")
	}

	reg, err := initRegistry()
	if err != nil {
		return nil, err
	}
	if len(only) > 0 {
		selected, err := reg.Select(only)
		if err != nil {
			return nil, err
		}
		reg = source.NewRegistryOf(selected...)
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := harvest.NewPipeline(st,
		classify.New(cfg.Harvest.QDAFormats, cfg.Harvest.QualitativeFormats),
		files.NewLayout(cfg.Paths.Root, cfg.Paths.Downloads),
		harvest.Options{
			SizeCap:       cfg.Harvest.SizeCapBytes(),
			FolderNames:   cfg.Harvest.FolderNames,
			ExcludedTypes: cfg.Harvest.ExcludedResourceTypes,
			Keywords:      cfg.Harvest.RelevanceKeywords,
		})

	return &harvestEnv{
		Store:    st,
		Registry: reg,
		Driver:   harvest.NewDriver(reg, p, cfg.Harvest.Limit),
	}, nil
}
