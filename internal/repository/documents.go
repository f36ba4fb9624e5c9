package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/joseph-ayodele/docflow/internal/record"
)

const (
	maxIdentLen = 63 // Postgres NAMEDATALEN-1
	sqlTextType = "TEXT"

	pgDuplicateColumn = "42701"
	pgDuplicateTable  = "42P07"
	// a racing CREATE TABLE can collide on the row type in pg_type
	pgUniqueViolation = "23505"
)

// DocumentRepository is the store contract the HTTP layer depends on.
type DocumentRepository interface {
	// InsertBatch inserts recs in one transaction, adding columns as needed.
	InsertBatch(ctx context.Context, recs []record.Flat) (int, error)
	// InsertEach inserts recs one row at a time with no surrounding transaction.
	InsertEach(ctx context.Context, recs []record.Flat) (int, error)
	ListAll(ctx context.Context) ([]*record.Record, error)
}

// DocumentTable is a single all-TEXT table whose columns grow to fit the records written to it.
type DocumentTable struct {
	db     *DB
	table  string
	logger *slog.Logger
}

var _ DocumentRepository = (*DocumentTable)(nil)

func NewDocumentTable(db *DB, table string, logger *slog.Logger) *DocumentTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentTable{
		db:     db,
		table:  ColumnName(table),
		logger: logger.With("store", db.Name(), "table", table),
	}
}

// ColumnName maps a record key to a safe column identifier.
func ColumnName(key string) string {
	key = strings.TrimSpace(key)
	key = strings.Map(func(r rune) rune {
		if r == '"' || r == '`' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, key)
	if len(key) > maxIdentLen {
		cut := maxIdentLen
		for cut > 0 && !isRuneStart(key[cut]) {
			cut--
		}
		key = key[:cut]
	}
	if key == "" {
		return "field"
	}
	return key
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// quoteIdent double-quotes an identifier; both Postgres and SQLite accept the form.
func quoteIdent(s string) string { return pgx.Identifier{s}.Sanitize() }

func (t *DocumentTable) placeholder(n int) string {
	if t.db.Dialect() == dialect.Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// columnKey is the form under which the dialect compares identifiers. SQLite folds ASCII case;
// quoted Postgres identifiers are exact.
func (t *DocumentTable) columnKey(c string) string {
	if t.db.Dialect() == dialect.Postgres {
		return c
	}
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, c)
}

// Columns lists the table's columns in ordinal order. A missing table has no columns.
func (t *DocumentTable) Columns(ctx context.Context) ([]string, error) {
	var q string
	switch t.db.Dialect() {
	case dialect.Postgres:
		q = `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`
	default:
		q = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	}
	rows, err := t.db.SQL().QueryContext(ctx, q, t.table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// EnsureColumns creates the table if needed and adds any of keys that are missing as nullable
// TEXT columns. It is idempotent and tolerates concurrent callers adding the same column.
func (t *DocumentTable) EnsureColumns(ctx context.Context, keys []string) error {
	want := t.uniqueColumns(keys)
	if len(want) == 0 {
		return nil
	}

	existing, err := t.Columns(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		defs := make([]string, len(want))
		for i, c := range want {
			defs[i] = quoteIdent(c) + " " + sqlTextType
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.table), strings.Join(defs, ", "))
		if _, err := t.db.SQL().ExecContext(ctx, query); err != nil {
			if !isConcurrentCreate(err) {
				return fmt.Errorf("create table %s: %w", t.table, err)
			}
			t.logger.Info("documents.schema.create_raced", "error", err)
		} else {
			t.logger.Info("documents.schema.table_created", "columns", len(want))
		}

		// another writer may have won the create with a different column set
		if existing, err = t.Columns(ctx); err != nil {
			return err
		}
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[t.columnKey(c)] = true
	}
	for _, c := range want {
		if have[t.columnKey(c)] {
			continue
		}
		if err := t.addColumn(ctx, c); err != nil {
			return err
		}
		t.logger.Info("documents.schema.column_added", "column", c)
	}
	return nil
}

func (t *DocumentTable) addColumn(ctx context.Context, col string) error {
	table, column := quoteIdent(t.table), quoteIdent(col)
	var q string
	switch t.db.Dialect() {
	case dialect.Postgres:
		q = fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, sqlTextType)
	default:
		q = fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, sqlTextType)
	}
	_, err := t.db.SQL().ExecContext(ctx, q)
	if err == nil || isDuplicateColumn(err) {
		return nil
	}
	return fmt.Errorf("add column %s: %w", col, err)
}

func isDuplicateColumn(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateColumn
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// isConcurrentCreate reports a CREATE TABLE IF NOT EXISTS that lost a race with another session.
func isConcurrentCreate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateTable || pgErr.Code == pgUniqueViolation
	}
	return false
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (t *DocumentTable) insert(ctx context.Context, ex execer, rec record.Flat) (bool, error) {
	cols, vals := t.columnsAndValues(rec)
	if len(cols) == 0 {
		t.logger.Warn("documents.insert.skip_empty")
		return false, nil
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = t.placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if _, err := ex.ExecContext(ctx, query, vals...); err != nil {
		return false, fmt.Errorf("insert into %s: %w", t.table, err)
	}
	return true, nil
}

func (t *DocumentTable) InsertBatch(ctx context.Context, recs []record.Flat) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	start := time.Now()
	if err := t.EnsureColumns(ctx, unionKeys(recs)); err != nil {
		return 0, err
	}

	tx, err := t.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	n := 0
	for _, rec := range recs {
		ok, err := t.insert(ctx, tx, rec)
		if err != nil {
			_ = tx.Rollback()
			t.logger.Error("documents.insert_batch.failed", "error", err, "rows", len(recs))
			return 0, err
		}
		if ok {
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	t.logger.Info("documents.insert_batch.ok", "rows", n, "elapsed_ms", time.Since(start).Milliseconds())
	return n, nil
}

// InsertEach returns the number of rows written before the first failure. Rows already
// written stay committed.
func (t *DocumentTable) InsertEach(ctx context.Context, recs []record.Flat) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	start := time.Now()
	if err := t.EnsureColumns(ctx, unionKeys(recs)); err != nil {
		return 0, err
	}
	n := 0
	for i, rec := range recs {
		ok, err := t.insert(ctx, t.db.SQL(), rec)
		if err != nil {
			t.logger.Error("documents.insert_each.failed", "row", i, "committed", n, "error", err)
			return n, err
		}
		if ok {
			n++
		}
	}
	t.logger.Info("documents.insert_each.ok", "rows", n, "elapsed_ms", time.Since(start).Milliseconds())
	return n, nil
}

// ListAll returns every row with columns in table order. NULLs come back as null values.
func (t *DocumentTable) ListAll(ctx context.Context) ([]*record.Record, error) {
	cols, err := t.Columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return []*record.Record{}, nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(t.table))
	rows, err := t.db.SQL().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.table, err)
	}
	defer rows.Close()

	out := []*record.Record{}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := record.New()
		for i, c := range cols {
			if vals[i].Valid {
				r.Set(c, record.String(vals[i].String))
			} else {
				r.Set(c, record.Null())
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// columnsAndValues normalizes keys; when two keys share a column the later value wins.
func (t *DocumentTable) columnsAndValues(rec record.Flat) ([]string, []any) {
	idx := make(map[string]int, len(rec.Fields))
	var cols []string
	var vals []any
	for _, f := range rec.Fields {
		c := ColumnName(f.Key)
		var v any
		if f.Text != nil {
			v = *f.Text
		}
		if i, ok := idx[t.columnKey(c)]; ok {
			vals[i] = v
			continue
		}
		idx[t.columnKey(c)] = len(cols)
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return cols, vals
}

func unionKeys(recs []record.Flat) []string {
	var keys []string
	for _, r := range recs {
		keys = append(keys, r.Keys()...)
	}
	return keys
}

func (t *DocumentTable) uniqueColumns(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		c := ColumnName(k)
		if !seen[t.columnKey(c)] {
			seen[t.columnKey(c)] = true
			out = append(out, c)
		}
	}
	return out
}
