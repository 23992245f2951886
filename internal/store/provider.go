package store

import (
	"context"
	"time"
)

// Family identifies the kind of backing store an adapter talks to.
type Family string

const (
	FamilyRelational Family = "relational"
	FamilyKV         Family = "kv"
	FamilyVector     Family = "vector"
)

// FaultReason classifies why an adapter call failed. Faults are data, not
// errors: they travel inside a Snapshot and never abort an inspection.
type FaultReason string

const (
	FaultUnavailable FaultReason = "unavailable"
	FaultTimeout     FaultReason = "timeout"
	FaultMalformed   FaultReason = "malformed_payload"
)

// Fault describes a classified adapter failure.
type Fault struct {
	Reason FaultReason `json:"reason"`
	Detail string      `json:"detail,omitempty"`
}

// Snapshot is one provider's raw result for a record id at inspection time.
// It is created fresh per inspect call and never persisted.
type Snapshot struct {
	Store      string         `json:"store"`
	Family     Family         `json:"family"`
	Found      bool           `json:"found"`
	NativeKey  string         `json:"native_key"`
	Raw        map[string]any `json:"raw,omitempty"`
	Checksum   string         `json:"checksum,omitempty"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	TTLSeconds *int64         `json:"ttl_seconds,omitempty"`
	Fault      *Fault         `json:"fault,omitempty"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

// VectorInfo is the compact view of one stored embedding: enough to detect
// drift without ever shipping the raw float vector past the adapter boundary.
type VectorInfo struct {
	Model       string     `json:"model"`
	Store       string     `json:"store"`
	Dimension   int        `json:"dimension"`
	Fingerprint string     `json:"fingerprint"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Health is the result of a lightweight per-provider probe.
type Health struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Provider is the contract every store adapter satisfies. FetchByKey returns
// Found=false for a missing record; the error return is reserved for
// transport, auth, and decoding failures, which the Guarded wrapper converts
// into fault snapshots so callers above the registry never see them.
type Provider interface {
	Name() string
	Family() Family

	// KeyFor reports the store-native key derived from the shared record id.
	// The derivation must be deterministic; adapters echo it in NativeKey.
	KeyFor(id string) string

	FetchByKey(ctx context.Context, id string) (Snapshot, error)
	Health(ctx context.Context) Health
}

// TTLProvider is implemented by cache-family adapters. TTL returns nil when
// the key is missing or has no expiry.
type TTLProvider interface {
	TTL(ctx context.Context, id string) (*int64, error)
}

// VectorProvider is implemented by vector-family adapters. One record may
// hold embeddings for several models, hence the slice.
type VectorProvider interface {
	RetrieveVector(ctx context.Context, id string) ([]VectorInfo, error)
}
