// Package inspect orchestrates one inspection: fan out to every enabled
// provider, normalize and checksum whatever comes back, and evaluate the
// snapshots into a consistency report. Partial failure of a store never
// fails the inspection; it shows up as a fault snapshot in the result.
package inspect

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkoval/storecheck/internal/canonical"
	"github.com/mkoval/storecheck/internal/checksum"
	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/store"
)

const (
	defaultOverallTimeout = 2 * time.Second
	defaultBatchLimit     = 4
)

// Options wires an Inspector.
type Options struct {
	// Mappings holds per-store canonical field mappings, keyed by provider
	// name. Stores without an entry use the identity mapping.
	Mappings map[string]canonical.FieldMap
	Compare  compare.Options
	// OverallTimeout bounds one whole inspection across all providers.
	OverallTimeout time.Duration
	// BatchLimit caps concurrent ids in batch mode.
	BatchLimit int
	Logger     *slog.Logger
}

// Inspector runs read-only cross-store inspections against a registry
// populated at startup.
type Inspector struct {
	reg      *store.Registry
	mappings map[string]canonical.FieldMap
	cmpOpts  compare.Options
	overall  time.Duration
	batch    int
	logger   *slog.Logger
}

func New(reg *store.Registry, opts Options) *Inspector {
	overall := opts.OverallTimeout
	if overall <= 0 {
		overall = defaultOverallTimeout
	}
	batch := opts.BatchLimit
	if batch <= 0 {
		batch = defaultBatchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		reg:      reg,
		mappings: opts.Mappings,
		cmpOpts:  opts.Compare,
		overall:  overall,
		batch:    batch,
		logger:   logger,
	}
}

// Result is one record's inspection outcome: raw per-store snapshots, the
// embedding fingerprints seen, and the evaluated report.
type Result struct {
	InspectionID string             `json:"inspection_id"`
	RecordID     string             `json:"record_id"`
	Snapshots    []store.Snapshot   `json:"snapshots"`
	Vectors      []store.VectorInfo `json:"vectors,omitempty"`
	Report       compare.Report     `json:"report"`
}

// BatchResult pairs a record id with its isolated outcome.
type BatchResult struct {
	RecordID string `json:"record_id"`
	Result   Result `json:"result"`
}

// Inspect fans out to every registered provider and always returns a result,
// even when zero providers are reachable.
func (ins *Inspector) Inspect(ctx context.Context, id string) Result {
	ctx, cancel := context.WithTimeout(ctx, ins.overall)
	defer cancel()

	provs := ins.reg.Providers()
	inputs := make([]compare.Input, len(provs))

	// One goroutine per provider. Providers never return errors past the
	// guard, so the group exists purely for the fan-out/join.
	var g errgroup.Group
	for i, p := range provs {
		g.Go(func() error {
			inputs[i] = ins.inspectOne(ctx, p, id)
			return nil
		})
	}
	g.Wait()

	report := compare.Evaluate(id, inputs, ins.cmpOpts)

	res := Result{
		InspectionID: uuid.New().String(),
		RecordID:     id,
		Report:       report,
	}
	for _, in := range inputs {
		res.Snapshots = append(res.Snapshots, in.Snapshot)
		res.Vectors = append(res.Vectors, in.Vectors...)
	}
	sort.Slice(res.Snapshots, func(i, j int) bool { return res.Snapshots[i].Store < res.Snapshots[j].Store })
	sort.Slice(res.Vectors, func(i, j int) bool {
		if res.Vectors[i].Store != res.Vectors[j].Store {
			return res.Vectors[i].Store < res.Vectors[j].Store
		}
		return res.Vectors[i].Model < res.Vectors[j].Model
	})

	ins.logger.Info("inspection complete",
		"inspection_id", res.InspectionID, "record_id", id,
		"status", report.Status, "problems", len(report.Problems))
	return res
}

func (ins *Inspector) inspectOne(ctx context.Context, p *store.Guarded, id string) compare.Input {
	snap := p.Fetch(ctx, id)
	in := compare.Input{Snapshot: snap}
	if !snap.Found {
		in.Snapshot = snap
		return in
	}

	if snap.Family == store.FamilyKV {
		snap.TTLSeconds = p.FetchTTL(ctx, id)
	}

	rec, malformed := canonical.Normalize(ins.mappingFor(p.Name()), snap.Raw)
	for _, field := range malformed {
		ins.logger.Warn("malformed payload field",
			"store", p.Name(), "record_id", id, "field", field)
	}
	snap.Checksum = checksum.Content(rec.Values())
	if snap.UpdatedAt == nil {
		snap.UpdatedAt = rec.UpdatedAt
	}

	in.Snapshot = snap
	in.Record = rec
	in.Vectors = p.FetchVectors(ctx, id)
	return in
}

// Diff is the consistency-only view: the evaluated report without raw
// payloads.
func (ins *Inspector) Diff(ctx context.Context, id string) compare.Report {
	return ins.Inspect(ctx, id).Report
}

// Batch inspects each id with per-id isolation: a provider blowing up on one
// id influences nothing but that id's own result. Output order follows input
// order.
func (ins *Inspector) Batch(ctx context.Context, ids []string) []BatchResult {
	results := make([]BatchResult, len(ids))

	g := errgroup.Group{}
	g.SetLimit(ins.batch)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = BatchResult{RecordID: id, Result: ins.Inspect(ctx, id)}
			return nil
		})
	}
	g.Wait()
	return results
}

// Health probes every provider concurrently. A down provider reports its
// own status without failing the call.
func (ins *Inspector) Health(ctx context.Context) map[string]store.Health {
	provs := ins.reg.Providers()
	statuses := make([]store.Health, len(provs))

	var g errgroup.Group
	for i, p := range provs {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			statuses[i] = p.Health(probeCtx)
			return nil
		})
	}
	g.Wait()

	out := make(map[string]store.Health, len(provs))
	for i, p := range provs {
		out[p.Name()] = statuses[i]
	}
	return out
}

func (ins *Inspector) mappingFor(name string) canonical.FieldMap {
	if fm, ok := ins.mappings[name]; ok {
		return fm
	}
	return canonical.DefaultFieldMap()
}
