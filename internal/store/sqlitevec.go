package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/mkoval/storecheck/internal/checksum"
)

var (
	_ Provider       = (*SQLiteVecProvider)(nil)
	_ VectorProvider = (*SQLiteVecProvider)(nil)
)

// SQLiteVecOptions configures a vector-family adapter over an application's
// SQLite vector table: one row per (record, model) with the embedding stored
// as a little-endian float32 blob.
type SQLiteVecOptions struct {
	Name        string
	DSN         string
	Table       string // defaults to "context_vectors"
	KeyColumn   string // defaults to "source_id"
	VectorCol   string // defaults to "embedding"
	ModelColumn string // optional; if empty, model is "default"
}

// SQLiteVecProvider serves deployments that keep embeddings next to the
// documents in SQLite rather than in a dedicated vector service.
type SQLiteVecProvider struct {
	name      string
	db        *sql.DB
	table     string
	keyCol    string
	vectorCol string
	modelCol  string
	fp        checksum.Fingerprinter
}

func NewSQLiteVecProvider(opts SQLiteVecOptions, fp checksum.Fingerprinter) (*SQLiteVecProvider, error) {
	db, err := sql.Open("sqlite", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening vector database for %s: %w", opts.Name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging vector database for %s: %w", opts.Name, err)
	}
	db.SetMaxOpenConns(1)
	return newSQLiteVec(opts, db, fp), nil
}

// NewSQLiteVecProviderFromDB wraps an already-open database. Used by tests.
func NewSQLiteVecProviderFromDB(opts SQLiteVecOptions, db *sql.DB, fp checksum.Fingerprinter) *SQLiteVecProvider {
	return newSQLiteVec(opts, db, fp)
}

func newSQLiteVec(opts SQLiteVecOptions, db *sql.DB, fp checksum.Fingerprinter) *SQLiteVecProvider {
	if opts.Table == "" {
		opts.Table = "context_vectors"
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "source_id"
	}
	if opts.VectorCol == "" {
		opts.VectorCol = "embedding"
	}
	return &SQLiteVecProvider{
		name:      opts.Name,
		db:        db,
		table:     opts.Table,
		keyCol:    opts.KeyColumn,
		vectorCol: opts.VectorCol,
		modelCol:  opts.ModelColumn,
		fp:        fp,
	}
}

func (p *SQLiteVecProvider) Name() string   { return p.name }
func (p *SQLiteVecProvider) Family() Family { return FamilyVector }

// KeyFor is the identity: rows are keyed by the record id verbatim.
func (p *SQLiteVecProvider) KeyFor(id string) string { return id }

func (p *SQLiteVecProvider) FetchByKey(ctx context.Context, id string) (Snapshot, error) {
	snap := Snapshot{Store: p.name, Family: FamilyVector, NativeKey: p.KeyFor(id)}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", p.table, p.keyCol)
	rows, err := p.db.QueryContext(ctx, query, id)
	if err != nil {
		return snap, fmt.Errorf("querying %s: %w", p.table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return snap, fmt.Errorf("iterating %s: %w", p.table, err)
		}
		return snap, nil
	}

	raw, err := scanRowToMap(rows)
	if err != nil {
		return snap, fmt.Errorf("scanning row from %s: %w", p.table, err)
	}
	// The embedding blob is not payload; fingerprints travel via RetrieveVector.
	delete(raw, p.vectorCol)

	snap.Found = true
	snap.Raw = raw
	return snap, nil
}

func (p *SQLiteVecProvider) RetrieveVector(ctx context.Context, id string) ([]VectorInfo, error) {
	modelExpr := "''"
	if p.modelCol != "" {
		modelExpr = p.modelCol
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?", modelExpr, p.vectorCol, p.table, p.keyCol)
	rows, err := p.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying vectors from %s: %w", p.table, err)
	}
	defer rows.Close()

	var infos []VectorInfo
	for rows.Next() {
		var model string
		var blob []byte
		if err := rows.Scan(&model, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		vec, err := decodeFloat32s(blob)
		if err != nil {
			return nil, errMalformed(fmt.Errorf("decoding embedding for %s: %w", id, err))
		}
		if model == "" {
			model = "default"
		}
		infos = append(infos, VectorInfo{
			Model:       model,
			Store:       p.name,
			Dimension:   len(vec),
			Fingerprint: p.fp.Vector(vec),
		})
	}
	return infos, rows.Err()
}

func (p *SQLiteVecProvider) Health(ctx context.Context) Health {
	if err := p.db.PingContext(ctx); err != nil {
		return Health{OK: false, Detail: err.Error()}
	}
	return Health{OK: true}
}

// Close releases the connection pool.
func (p *SQLiteVecProvider) Close() error { return p.db.Close() }

// decodeFloat32s deserializes little-endian bytes into a float32 slice.
// Returns an error if the length is not a multiple of 4 (data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// EncodeFloat32s serializes a float32 slice to little-endian bytes. Exported
// for tests and backfill tooling that seed vector tables.
func EncodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
