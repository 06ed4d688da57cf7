package harvest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/source"
)

// Source run statuses.
const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// SourceResult is the outcome of one source in a run.
type SourceResult struct {
	Key      string      `json:"key"`
	Status   string      `json:"status"`
	Stats    model.Stats `json:"stats"`
	Err      string      `json:"error,omitempty"`
	Attempts int         `json:"attempts"`
}

// Report summarizes a multi-source run.
type Report struct {
	RunID   uuid.UUID      `json:"run_id"`
	Queries int            `json:"queries"`
	Results []SourceResult `json:"results"`
	Totals  model.Stats    `json:"totals"`
}

// Succeeded returns the number of sources that ended OK.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusOK {
			n++
		}
	}
	return n
}

// Failed returns the number of sources that ended FAILED.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Driver runs queries against sources through a Pipeline, one source and
// one hit at a time.
type Driver struct {
	registry *source.Registry
	pipeline *Pipeline
	// Limit caps the new hits of each query. Zero disables the cap.
	Limit int
	log   *zap.Logger
}

// NewDriver creates a Driver over the given registry.
func NewDriver(reg *source.Registry, p *Pipeline, limit int) *Driver {
	return &Driver{
		registry: reg,
		pipeline: p,
		Limit:    limit,
		log:      zap.L().With(zap.String("component", "harvest.driver")),
	}
}

// RunSource executes every query against the source registered under key.
// Hits already seen under an earlier query of the same call are dropped. A
// failed search aborts the source and is returned with the stats so far.
func (d *Driver) RunSource(ctx context.Context, key string, queries []string) (model.Stats, error) {
	var total model.Stats

	src, err := d.registry.Get(key)
	if err != nil {
		return total, err
	}

	seen := make(map[string]struct{})
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		log := d.log.With(zap.String("source", key), zap.String("query", q), zap.Int("query_index", i+1), zap.Int("queries", len(queries)))
		log.Info("searching")

		hits, err := src.Search(ctx, q, "")
		if err != nil {
			return total, eris.Wrapf(err, "harvest: search %s for %q", key, q)
		}

		var fresh []model.DatasetHit
		for _, h := range hits {
			if _, dup := seen[h.SourceURL]; dup {
				continue
			}
			seen[h.SourceURL] = struct{}{}
			fresh = append(fresh, h)
		}
		if d.Limit > 0 && len(fresh) > d.Limit {
			fresh = fresh[:d.Limit]
		}

		log.Info("new datasets found", zap.Int("hits", len(fresh)))
		if len(fresh) == 0 {
			continue
		}

		stats, err := d.pipeline.Process(ctx, src, key, fresh)
		total.Add(stats)
		if err != nil {
			return total, eris.Wrapf(err, "harvest: process %s", key)
		}
	}

	d.log.Info("source finished",
		zap.String("source", key),
		zap.Int("downloaded", total.Downloaded),
		zap.Int("restricted", total.Restricted),
		zap.Int("skipped", total.Skipped),
	)
	return total, nil
}

// RunAll harvests every registered source in order, then re-runs only the
// failed ones up to retries more times. A source failure never stops the
// others; the returned error is set only when ctx ends the run early.
func (d *Driver) RunAll(ctx context.Context, queries []string, retries int) (*Report, error) {
	report := &Report{RunID: uuid.New(), Queries: len(queries)}
	log := d.log.With(zap.String("run_id", report.RunID.String()))

	index := make(map[string]int)
	var failed []string

	for _, key := range d.registry.Keys() {
		if err := ctx.Err(); err != nil {
			return d.finish(report), err
		}
		log.Info("harvesting source", zap.String("source", key))
		res := d.attempt(ctx, key, queries, SourceResult{Key: key})
		index[key] = len(report.Results)
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed {
			failed = append(failed, key)
		}
	}

	for attempt := 1; attempt <= retries && len(failed) > 0; attempt++ {
		log.Info("retrying failed sources", zap.Int("attempt", attempt), zap.Int("retries", retries), zap.Strings("sources", failed))
		var still []string
		for _, key := range failed {
			if err := ctx.Err(); err != nil {
				return d.finish(report), err
			}
			i := index[key]
			report.Results[i] = d.attempt(ctx, key, queries, report.Results[i])
			if report.Results[i].Status == StatusFailed {
				still = append(still, key)
			}
		}
		failed = still
	}

	d.finish(report)
	log.Info("run complete",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Int("downloaded", report.Totals.Downloaded),
		zap.Int("restricted", report.Totals.Restricted),
		zap.Int("skipped", report.Totals.Skipped),
	)
	return report, nil
}

// attempt runs one source and folds the outcome into prev. A failed source
// reports zero stats; whatever it admitted is picked up by the next run.
func (d *Driver) attempt(ctx context.Context, key string, queries []string, prev SourceResult) SourceResult {
	res := prev
	res.Attempts++
	stats, err := d.RunSource(ctx, key, queries)
	if err != nil {
		d.log.Error("source failed", zap.String("source", key), zap.Int("attempt", res.Attempts), zap.Error(err))
		res.Status = StatusFailed
		res.Stats = model.Stats{}
		res.Err = err.Error()
		return res
	}
	res.Status = StatusOK
	res.Stats = stats
	res.Err = ""
	return res
}

func (d *Driver) finish(r *Report) *Report {
	r.Totals = model.Stats{}
	for _, res := range r.Results {
		r.Totals.Add(res.Stats)
	}
	return r
}
