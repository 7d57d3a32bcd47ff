package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// BaseStore provides common PostgreSQL operations that repositories embed
// to avoid re-implementing transaction plumbing and scan boilerplate.
type BaseStore struct {
	db        *sqlx.DB
	tableName string
}

// NewBaseStore creates a new BaseStore for the given table.
func NewBaseStore(db *sqlx.DB, tableName string) *BaseStore {
	return &BaseStore{db: db, tableName: tableName}
}

// DB returns the underlying connection pool.
func (s *BaseStore) DB() *sqlx.DB {
	return s.db
}

// TableName returns the table this store is scoped to.
func (s *BaseStore) TableName() string {
	return s.tableName
}

// Querier returns the active transaction if ctx carries one, else the pool.
func (s *BaseStore) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// BeginTx starts a new transaction and returns a context carrying it.
func (s *BaseStore) BeginTx(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ctx, fmt.Errorf("begin transaction: %w", err)
	}
	return ContextWithTx(ctx, tx), nil
}

// CommitTx commits the transaction carried by ctx.
func (s *BaseStore) CommitTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	return tx.Commit()
}

// RollbackTx rolls back the transaction carried by ctx, if any.
func (s *BaseStore) RollbackTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on error. fn must thread the supplied ctx through every
// repository call it makes so they share the transaction.
func (s *BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		// Already inside a transaction (nested WithTx); run fn directly so
		// callers can compose multi-repository operations into one commit.
		return fn(ctx)
	}

	txCtx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = s.RollbackTx(txCtx)
		return err
	}
	return s.CommitTx(txCtx)
}

// ExecContext executes a statement that doesn't return rows.
func (s *BaseStore) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.Querier(ctx).ExecContext(ctx, query, args...)
}

// GetContext scans a single row into dest.
func (s *BaseStore) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.Querier(ctx).GetContext(ctx, dest, query, args...)
}

// SelectContext scans multiple rows into dest (a pointer to a slice).
func (s *BaseStore) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.Querier(ctx).SelectContext(ctx, dest, query, args...)
}

// Exists checks whether a record exists by ID.
func (s *BaseStore) Exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", s.tableName)
	var exists bool
	if err := s.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return exists, nil
}

// DeleteByID deletes a record by ID, returning sql.ErrNoRows if absent.
func (s *BaseStore) DeleteByID(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountAll counts all rows in the table.
func (s *BaseStore) CountAll(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	var count int64
	if err := s.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count all: %w", err)
	}
	return count, nil
}

// --- Query Builder ---

// SelectBuilder builds parameterized SELECT statements for Postgres
// ($N placeholders).
type SelectBuilder struct {
	table      string
	columns    []string
	conditions []string
	args       []interface{}
	orderBy    []string
	limit      int
	offset     int
	argIndex   int
}

func NewSelectBuilder(table string) *SelectBuilder {
	return &SelectBuilder{table: table, argIndex: 1}
}

func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a raw condition; each "?" in condition is replaced in order
// by a $N placeholder bound to the corresponding arg.
func (b *SelectBuilder) Where(condition string, args ...interface{}) *SelectBuilder {
	for _, arg := range args {
		condition = strings.Replace(condition, "?", fmt.Sprintf("$%d", b.argIndex), 1)
		b.args = append(b.args, arg)
		b.argIndex++
	}
	b.conditions = append(b.conditions, condition)
	return b
}

func (b *SelectBuilder) WhereEq(column string, value interface{}) *SelectBuilder {
	return b.Where(fmt.Sprintf("%s = ?", column), value)
}

func (b *SelectBuilder) WhereIn(column string, values []interface{}) *SelectBuilder {
	if len(values) == 0 {
		b.conditions = append(b.conditions, "1 = 0")
		return b
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", b.argIndex)
		b.args = append(b.args, v)
		b.argIndex++
	}
	b.conditions = append(b.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return b
}

func (b *SelectBuilder) OrderBy(column string, desc bool) *SelectBuilder {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	b.orderBy = append(b.orderBy, fmt.Sprintf("%s %s", column, order))
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = n
	return b
}

func (b *SelectBuilder) Build() (string, []interface{}) {
	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, b.table)
	if len(b.conditions) > 0 {
		query += " WHERE " + strings.Join(b.conditions, " AND ")
	}
	if len(b.orderBy) > 0 {
		query += " ORDER BY " + strings.Join(b.orderBy, ", ")
	}
	if b.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", b.limit)
	}
	if b.offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", b.offset)
	}
	return query, b.args
}

// --- Null-type conversion helpers ---

func NullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func PtrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func NullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func PtrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func NullInt64ToPtr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

func PtrToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
