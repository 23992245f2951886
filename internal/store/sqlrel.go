package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Compile-time check that SQLProvider implements Provider.
var _ Provider = (*SQLProvider)(nil)

// SQLOptions configures a relational-family adapter.
type SQLOptions struct {
	Name      string
	Driver    string // "sqlite" or "mysql"
	DSN       string
	Table     string
	KeyColumn string // defaults to "id"
}

// SQLProvider reads one record per primary-key lookup from a relational
// store via database/sql. The record id is used verbatim as the key value.
type SQLProvider struct {
	name      string
	db        *sql.DB
	table     string
	keyColumn string
}

// NewSQLProvider opens the database and verifies connectivity. A failure
// here is a configuration error and fatal at startup.
func NewSQLProvider(opts SQLOptions) (*SQLProvider, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("provider %s: table is required", opts.Name)
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "id"
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database for %s: %w", opts.Name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database for %s: %w", opts.Name, err)
	}
	if opts.Driver == "sqlite" {
		// Single connection avoids "database is locked" on concurrent probes.
		db.SetMaxOpenConns(1)
	}

	return &SQLProvider{
		name:      opts.Name,
		db:        db,
		table:     opts.Table,
		keyColumn: opts.KeyColumn,
	}, nil
}

// NewSQLProviderFromDB wraps an already-open database. Used by tests.
func NewSQLProviderFromDB(name string, db *sql.DB, table, keyColumn string) *SQLProvider {
	if keyColumn == "" {
		keyColumn = "id"
	}
	return &SQLProvider{name: name, db: db, table: table, keyColumn: keyColumn}
}

func (p *SQLProvider) Name() string   { return p.name }
func (p *SQLProvider) Family() Family { return FamilyRelational }

// KeyFor is the identity: relational lookup uses the record id verbatim.
func (p *SQLProvider) KeyFor(id string) string { return id }

func (p *SQLProvider) FetchByKey(ctx context.Context, id string) (Snapshot, error) {
	snap := Snapshot{Store: p.name, Family: FamilyRelational, NativeKey: p.KeyFor(id)}

	// Table and column names come from startup-validated configuration,
	// never from the request.
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", p.table, p.keyColumn)
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

	snap.Found = true
	snap.Raw = raw
	return snap, nil
}

func (p *SQLProvider) Health(ctx context.Context) Health {
	if err := p.db.PingContext(ctx); err != nil {
		return Health{OK: false, Detail: err.Error()}
	}
	return Health{OK: true}
}

// Close releases the connection pool.
func (p *SQLProvider) Close() error { return p.db.Close() }

// scanRowToMap scans the current row into a column-name keyed map without
// knowing the table's schema. []byte values become strings so JSON encoding
// and normalization see text, not base64.
func scanRowToMap(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	raw := make(map[string]any, len(cols))
	for i, col := range cols {
		switch v := values[i].(type) {
		case []byte:
			raw[col] = string(v)
		case time.Time:
			raw[col] = v
		default:
			raw[col] = v
		}
	}
	return raw, nil
}
