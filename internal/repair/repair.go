// Package repair turns an inspection result into a sync-to-majority plan.
// Planning is always dry-run; applying a plan is a separate, explicitly
// gated path that the default read-only deployment cannot reach. Nothing in
// this package is ever invoked implicitly by an inspection.
package repair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mkoval/storecheck/internal/inspect"
)

// ErrDisabled is returned by Apply when the repair gate is closed.
var ErrDisabled = errors.New("repair is disabled")

// Op describes what an action would do to a store.
type Op string

const (
	OpCopy      Op = "copy"      // record missing, copy from a majority store
	OpOverwrite Op = "overwrite" // record diverged, overwrite from a majority store
	OpSkip      Op = "skip"      // store unreachable during inspection
)

// Action is one proposed step of a plan.
type Action struct {
	Store       string `json:"store"`
	Op          Op     `json:"op"`
	SourceStore string `json:"source_store,omitempty"`
	Reason      string `json:"reason"`
}

// Plan is a dry-run description of how to restore consistency for one
// record. Plans are idempotent: re-planning an unchanged record yields the
// same actions (the plan id aside).
type Plan struct {
	ID               string    `json:"id"`
	RecordID         string    `json:"record_id"`
	CreatedAt        time.Time `json:"created_at"`
	MajorityChecksum string    `json:"majority_checksum,omitempty"`
	MajorityStores   []string  `json:"majority_stores,omitempty"`
	Actions          []Action  `json:"actions"`
}

// Writer applies one record write to one store. No adapter in the read-only
// build implements it; a deployment that opts into repair supplies its own.
type Writer interface {
	WriteRecord(ctx context.Context, id string, payload map[string]any) error
}

// Planner derives plans and gates their application.
type Planner struct {
	enabled bool
}

func NewPlanner(enabled bool) *Planner {
	return &Planner{enabled: enabled}
}

// Plan computes the sync-to-majority actions for an inspection result.
// Majority is by content checksum over found stores; ties break toward the
// lexicographically smallest checksum so planning stays deterministic.
func (p *Planner) Plan(res inspect.Result) Plan {
	plan := Plan{
		ID:        uuid.New().String(),
		RecordID:  res.RecordID,
		CreatedAt: time.Now().UTC(),
	}

	votes := make(map[string][]string) // checksum -> stores
	for _, s := range res.Snapshots {
		if s.Found && s.Checksum != "" {
			votes[s.Checksum] = append(votes[s.Checksum], s.Store)
		}
	}
	if len(votes) > 0 {
		sums := make([]string, 0, len(votes))
		for sum := range votes {
			sums = append(sums, sum)
		}
		sort.Strings(sums)
		best := sums[0]
		for _, sum := range sums[1:] {
			if len(votes[sum]) > len(votes[best]) {
				best = sum
			}
		}
		plan.MajorityChecksum = best
		plan.MajorityStores = append([]string(nil), votes[best]...)
		sort.Strings(plan.MajorityStores)
	}

	source := ""
	if len(plan.MajorityStores) > 0 {
		source = plan.MajorityStores[0]
	}

	for _, s := range res.Snapshots {
		switch {
		case s.Fault != nil:
			plan.Actions = append(plan.Actions, Action{
				Store:  s.Store,
				Op:     OpSkip,
				Reason: fmt.Sprintf("store unreachable during inspection (%s)", s.Fault.Reason),
			})
		case !s.Found && source != "":
			plan.Actions = append(plan.Actions, Action{
				Store:       s.Store,
				Op:          OpCopy,
				SourceStore: source,
				Reason:      "record missing from store",
			})
		case s.Found && s.Checksum != plan.MajorityChecksum:
			plan.Actions = append(plan.Actions, Action{
				Store:       s.Store,
				Op:          OpOverwrite,
				SourceStore: source,
				Reason:      fmt.Sprintf("checksum %s diverges from majority %s", s.Checksum, plan.MajorityChecksum),
			})
		}
	}
	sort.Slice(plan.Actions, func(i, j int) bool { return plan.Actions[i].Store < plan.Actions[j].Store })
	return plan
}

// Apply executes a plan through the supplied writers. It refuses to run
// unless repair was enabled in configuration, and it refuses any action
// whose store has no writer, so a partially wired deployment fails loudly
// instead of half-repairing.
func (p *Planner) Apply(ctx context.Context, plan Plan, payload map[string]any, writers map[string]Writer) error {
	if !p.enabled {
		return ErrDisabled
	}
	if plan.MajorityChecksum == "" {
		return fmt.Errorf("plan %s has no majority to sync from", plan.ID)
	}

	for _, a := range plan.Actions {
		if a.Op == OpSkip {
			continue
		}
		if _, ok := writers[a.Store]; !ok {
			return fmt.Errorf("no writer for store %s", a.Store)
		}
	}
	for _, a := range plan.Actions {
		if a.Op == OpSkip {
			continue
		}
		if err := writers[a.Store].WriteRecord(ctx, plan.RecordID, payload); err != nil {
			return fmt.Errorf("applying %s to %s: %w", a.Op, a.Store, err)
		}
	}
	return nil
}
