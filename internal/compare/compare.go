// Package compare evaluates a set of per-store snapshots into a consistency
// report. It performs no I/O: everything it needs has already been fetched
// and normalized, which keeps the evaluator testable with synthetic inputs.
package compare

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkoval/storecheck/internal/canonical"
	"github.com/mkoval/storecheck/internal/store"
)

// Status is the rolled-up outcome of an inspection.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Severity grades a single finding.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Code identifies a class of finding.
type Code string

const (
	CodeMissingAll       Code = "MISSING_ALL"
	CodeMissingStores    Code = "MISSING_STORES"
	CodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	CodeTTLLow           Code = "TTL_LOW"
	CodeEmbeddingDrift   Code = "EMBEDDING_DRIFT"
)

// Problem is one finding about a record. Findings are reported, never
// returned as errors.
type Problem struct {
	Code     Code     `json:"code"`
	Stores   []string `json:"stores,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// FieldDiff records one canonical field whose non-null values disagree
// across stores. Values holds every inspected store, nil where absent.
type FieldDiff struct {
	Field  string             `json:"field"`
	Values map[string]*string `json:"values"`
}

// EmbeddingDiff records one embedding model whose fingerprints disagree
// across the stores that hold it.
type EmbeddingDiff struct {
	Model        string            `json:"model"`
	Fingerprints map[string]string `json:"fingerprints"`
	Dimensions   map[string]int    `json:"dimensions"`
}

// Report is the outcome of evaluating one record across all stores.
type Report struct {
	RecordID       string          `json:"record_id"`
	Status         Status          `json:"status"`
	Problems       []Problem       `json:"problems"`
	FieldDiffs     []FieldDiff     `json:"field_diffs"`
	EmbeddingDiffs []EmbeddingDiff `json:"embedding_diffs"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Input pairs one store's snapshot with its normalized record and any
// embedding fingerprints the store reported.
type Input struct {
	Snapshot store.Snapshot
	Record   canonical.Record
	Vectors  []store.VectorInfo
}

// Options tunes the evaluation. Zero values fall back to defaults.
type Options struct {
	// Fields restricts the field-level diff; empty means all canonical fields.
	Fields []string
	// TTLFloorSeconds flags cache entries expiring sooner than this. 0 means 3600.
	TTLFloorSeconds int64
}

const defaultTTLFloor = 3600

// Evaluate produces a Report from the inputs. It is deterministic and
// order-independent: inputs are keyed by store name before any check runs.
func Evaluate(recordID string, inputs []Input, opts Options) Report {
	rep := Report{
		RecordID:    recordID,
		Status:      StatusOK,
		GeneratedAt: time.Now().UTC(),
	}

	byStore := make(map[string]Input, len(inputs))
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		name := in.Snapshot.Store
		if _, dup := byStore[name]; !dup {
			names = append(names, name)
		}
		byStore[name] = in
	}
	sort.Strings(names)

	rep.Problems = append(rep.Problems, presenceProblems(names, byStore)...)
	rep.Problems = append(rep.Problems, checksumProblems(names, byStore)...)
	rep.FieldDiffs = fieldDiffs(names, byStore, opts.Fields)
	rep.Problems = append(rep.Problems, ttlProblems(names, byStore, opts.TTLFloorSeconds)...)

	drifts, driftProblems := embeddingDrift(names, byStore)
	rep.EmbeddingDiffs = drifts
	rep.Problems = append(rep.Problems, driftProblems...)

	for _, p := range rep.Problems {
		if p.Severity == SeverityError {
			rep.Status = StatusError
			break
		}
	}
	if rep.Status == StatusOK && (len(rep.Problems) > 0 || len(rep.FieldDiffs) > 0) {
		rep.Status = StatusWarning
	}
	return rep
}

func presenceProblems(names []string, byStore map[string]Input) []Problem {
	var found, missing []string
	for _, n := range names {
		if byStore[n].Snapshot.Found {
			found = append(found, n)
		} else {
			missing = append(missing, n)
		}
	}

	if len(found) == 0 {
		return []Problem{{
			Code:     CodeMissingAll,
			Stores:   names,
			Message:  "record not found in any store",
			Severity: SeverityError,
		}}
	}
	if len(missing) > 0 {
		return []Problem{{
			Code:     CodeMissingStores,
			Stores:   missing,
			Message:  fmt.Sprintf("record missing from: %s", strings.Join(missing, ", ")),
			Severity: SeverityWarning,
		}}
	}
	return nil
}

func checksumProblems(names []string, byStore map[string]Input) []Problem {
	sums := make(map[string][]string) // checksum -> stores
	for _, n := range names {
		s := byStore[n].Snapshot
		if !s.Found || s.Checksum == "" {
			continue
		}
		sums[s.Checksum] = append(sums[s.Checksum], n)
	}
	if len(sums) <= 1 {
		return nil
	}

	var stores []string
	var parts []string
	for sum := range sums {
		parts = append(parts, sum)
	}
	sort.Strings(parts)
	for _, sum := range parts {
		stores = append(stores, sums[sum]...)
	}
	sort.Strings(stores)

	return []Problem{{
		Code:     CodeChecksumMismatch,
		Stores:   stores,
		Message:  fmt.Sprintf("%d distinct content checksums across stores", len(sums)),
		Severity: SeverityWarning,
	}}
}

func fieldDiffs(names []string, byStore map[string]Input, fields []string) []FieldDiff {
	if len(fields) == 0 {
		fields = canonical.Fields
	}

	var diffs []FieldDiff
	for _, field := range fields {
		values := make(map[string]*string, len(names))
		var distinct []string
		for _, n := range names {
			in := byStore[n]
			if !in.Snapshot.Found {
				values[n] = nil
				continue
			}
			v := in.Record.Values()[field]
			values[n] = v
			if v != nil && !contains(distinct, *v) {
				distinct = append(distinct, *v)
			}
		}
		// Nulls are excluded from the equality check: a store that simply
		// does not carry a field is not in conflict with one that does.
		if len(distinct) > 1 {
			diffs = append(diffs, FieldDiff{Field: field, Values: values})
		}
	}
	return diffs
}

func ttlProblems(names []string, byStore map[string]Input, floor int64) []Problem {
	if floor <= 0 {
		floor = defaultTTLFloor
	}
	var problems []Problem
	for _, n := range names {
		s := byStore[n].Snapshot
		if s.Family != store.FamilyKV || !s.Found || s.TTLSeconds == nil {
			continue
		}
		if *s.TTLSeconds < floor {
			problems = append(problems, Problem{
				Code:     CodeTTLLow,
				Stores:   []string{n},
				Message:  fmt.Sprintf("cache entry expires in %ds (floor %ds)", *s.TTLSeconds, floor),
				Severity: SeverityWarning,
			})
		}
	}
	return problems
}

func embeddingDrift(names []string, byStore map[string]Input) ([]EmbeddingDiff, []Problem) {
	type perStore struct {
		fingerprints map[string]string
		dimensions   map[string]int
	}
	models := make(map[string]perStore)
	var modelNames []string

	for _, n := range names {
		for _, v := range byStore[n].Vectors {
			ps, ok := models[v.Model]
			if !ok {
				ps = perStore{fingerprints: map[string]string{}, dimensions: map[string]int{}}
				models[v.Model] = ps
				modelNames = append(modelNames, v.Model)
			}
			ps.fingerprints[n] = v.Fingerprint
			ps.dimensions[n] = v.Dimension
		}
	}
	sort.Strings(modelNames)

	var diffs []EmbeddingDiff
	var problems []Problem
	for _, model := range modelNames {
		ps := models[model]
		distinct := map[string]bool{}
		var stores []string
		for s, fp := range ps.fingerprints {
			distinct[fp] = true
			stores = append(stores, s)
		}
		if len(ps.fingerprints) < 2 || len(distinct) < 2 {
			continue
		}
		sort.Strings(stores)
		diffs = append(diffs, EmbeddingDiff{
			Model:        model,
			Fingerprints: ps.fingerprints,
			Dimensions:   ps.dimensions,
		})
		problems = append(problems, Problem{
			Code:     CodeEmbeddingDrift,
			Stores:   stores,
			Message:  fmt.Sprintf("model %s has diverging fingerprints", model),
			Severity: SeverityWarning,
		})
	}
	return diffs, problems
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
