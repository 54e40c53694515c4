// Package postgres implements storage.Repository on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Rows are loaded with the COPY protocol inside the same transaction that
deletes the vendor's previous rows, so readers see either the old or the new
load.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTable creates the schema (for qualified names) and the table.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// ReplaceRows deletes the scope's rows and copies rows in one transaction.
func (r *Repo) ReplaceRows(ctx context.Context, spec storage.TableSpec, scope string, columns []string, rows [][]any) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if spec.ScopeColumn != "" {
			if _, err := tx.Exec(ctx, buildDeleteSQL(spec), scope); err != nil {
				return fmt.Errorf("delete scope %s=%s from %s: %w", spec.ScopeColumn, scope, spec.Name, err)
			}
		}
		if len(rows) == 0 {
			return nil
		}
		copied, err := tx.CopyFrom(ctx, tableIdentifier(spec.Name), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", spec.Name, err)
		}
		n = copied
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// tableIdentifier splits a possibly schema-qualified name for CopyFrom.
func tableIdentifier(name string) pgx.Identifier {
	if schema, table := storage.SplitQualifiedName(name); schema != "" {
		return pgx.Identifier{schema, table}
	}
	return pgx.Identifier{strings.TrimSpace(name)}
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// buildCreateSQL builds the optional CREATE SCHEMA and the CREATE TABLE
// statement. It is pure so the DDL is testable without a database.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = pgIdent(c) + " TEXT"
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		tableIdentifier(t.Name).Sanitize(), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

func buildDeleteSQL(t storage.TableSpec) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE %s = $1;`, tableIdentifier(t.Name).Sanitize(), pgIdent(t.ScopeColumn))
}
