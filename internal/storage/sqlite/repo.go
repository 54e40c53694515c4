// Package sqlite implements storage.Repository on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
)

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER of older builds (999).
const maxParams = 999

// Repo implements storage.Repository for SQLite.
//
// SQLite has no schemas; a qualified name such as "staging.products" is
// rejected unless the schema is an attached database.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens cfg.DSN with the "sqlite" driver and pings it.
//
// Edge cases:
//   - In-memory databases (":memory:") are per connection,
//     so the pool is limited to one connection for them.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTable runs CREATE TABLE IF NOT EXISTS with TEXT columns.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// ReplaceRows deletes the scope's rows and inserts rows in one transaction.
func (r *Repo) ReplaceRows(ctx context.Context, spec storage.TableSpec, scope string, columns []string, rows [][]any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if spec.ScopeColumn != "" {
		q := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, sqlTable(spec.Name), sqlIdent(spec.ScopeColumn))
		if _, err := tx.ExecContext(ctx, q, scope); err != nil {
			return 0, fmt.Errorf("delete scope %s=%s from %s: %w", spec.ScopeColumn, scope, spec.Name, err)
		}
	}

	var n int64
	for _, batch := range storage.Batches(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(spec.Name, columns, batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return n, fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return n, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlTable(name string) string {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return sqlIdent(schema) + "." + sqlIdent(table)
	}
	return sqlIdent(strings.TrimSpace(name))
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = sqlIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlTable(t.Name), strings.Join(defs, ", ")), nil
}

// buildInsertSQL constructs one multi-row INSERT with "?" placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlTable(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	rowPH := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPH)
		args = append(args, row[:len(columns)]...)
	}
	return b.String(), args
}
