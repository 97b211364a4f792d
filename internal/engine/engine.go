// Package engine hosts the in-process analytical SQL session. Tables are
// registered from fetched datasets or local files and queried with full
// SQLite SQL, including joins and aggregates across datasets.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/query"
	"github.com/medlens/medlens/internal/store"
	"github.com/medlens/medlens/internal/table"
)

const (
	sqliteDriver = "sqlite"
	sqliteInMem  = ":memory:"
)

// ErrClosed is returned when a session is used after Close.
var ErrClosed = errors.New("engine: session closed")

// NotFoundError reports a table name that is not registered in the session.
type NotFoundError struct {
	Name       string
	Registered []string
}

func (e *NotFoundError) Error() string {
	if len(e.Registered) == 0 {
		return fmt.Sprintf("table %q is not registered; no tables loaded", e.Name)
	}
	return fmt.Sprintf("table %q is not registered; loaded tables: %s", e.Name, strings.Join(e.Registered, ", "))
}

// QueryError wraps a failed statement together with the session catalog so
// callers can explain which referenced tables were never registered.
type QueryError struct {
	SQL        string
	Missing    []string
	Registered []string
	Err        error
}

func (e *QueryError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("query failed: %v (unregistered tables: %s)", e.Err, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// TableInfo describes one registered table.
type TableInfo struct {
	Name    string
	Source  string
	Rows    int
	Columns []table.Column
}

// Session is a single in-memory SQLite database holding registered tables.
// All methods are safe for concurrent use; statements execute on one
// connection so registered tables are visible to every query.
type Session struct {
	db     *sql.DB
	logger logging.Logger

	mu     sync.Mutex
	tables map[string]TableInfo
	closed bool
}

// NewSession opens a fresh in-memory session.
func NewSession(logger logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	db, err := sql.Open(sqliteDriver, sqliteInMem)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// A second connection would see an empty :memory: database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open session database: %w", err)
	}
	return &Session{
		db:     db,
		logger: logger,
		tables: make(map[string]TableInfo),
	}, nil
}

// Register creates (or replaces) a table from t under name. The name is
// sanitized to a SQL identifier; the sanitized name is returned in TableInfo.
func (s *Session) Register(ctx context.Context, name string, t *table.Table, source string) (TableInfo, error) {
	if t == nil || len(t.Columns) == 0 {
		return TableInfo{}, fmt.Errorf("register %q: table has no columns", name)
	}
	sqlName := query.SanitizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return TableInfo{}, ErrClosed
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(sqlName)); err != nil {
		return TableInfo{}, fmt.Errorf("register %q: %w", sqlName, err)
	}
	if _, err := s.db.ExecContext(ctx, createTableDDL(sqlName, t.Columns)); err != nil {
		return TableInfo{}, fmt.Errorf("register %q: %w", sqlName, err)
	}
	if err := s.insertRows(ctx, sqlName, t); err != nil {
		s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(sqlName))
		return TableInfo{}, fmt.Errorf("register %q: %w", sqlName, err)
	}

	info := TableInfo{
		Name:    sqlName,
		Source:  source,
		Rows:    t.RowCount(),
		Columns: append([]table.Column(nil), t.Columns...),
	}
	s.tables[sqlName] = info
	s.logger.Info("table registered", "table", sqlName, "rows", info.Rows, "source", source)
	return info, nil
}

// RegisterParquet loads a columnar file from disk and registers it.
func (s *Session) RegisterParquet(ctx context.Context, name, path string) (TableInfo, error) {
	t, err := store.Read(path)
	if err != nil {
		return TableInfo{}, err
	}
	return s.Register(ctx, name, t, "parquet:"+path)
}

// RegisterCSV loads a CSV file from disk and registers it.
func (s *Session) RegisterCSV(ctx context.Context, name, path string) (TableInfo, error) {
	t, err := store.ReadCSV(path)
	if err != nil {
		return TableInfo{}, err
	}
	return s.Register(ctx, name, t, "csv:"+path)
}

func (s *Session) insertRows(ctx context.Context, sqlName string, t *table.Table) error {
	if t.RowCount() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",")
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = query.QuoteIdent(c.Name)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", query.QuoteIdent(sqlName), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, row := range t.Rows {
		for i, cell := range row {
			args[i] = bindValue(cell, t.Columns[i].Type)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query runs one SQL statement and returns the full result set. Failures are
// wrapped in *QueryError carrying the registered-table catalog.
func (s *Session) Query(ctx context.Context, sqlText string) (*table.Table, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	registered := s.tableNamesLocked()
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, s.wrapQueryError(sqlText, registered, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, s.wrapQueryError(sqlText, registered, err)
	}
	return result, nil
}

func (s *Session) wrapQueryError(sqlText string, registered []string, err error) error {
	qerr := &QueryError{SQL: sqlText, Registered: registered, Err: err}
	if analysis, aerr := query.Analyze(sqlText); aerr == nil {
		for _, ref := range analysis.Tables {
			if !containsFold(registered, ref) {
				qerr.Missing = append(qerr.Missing, ref)
			}
		}
	}
	return qerr
}

// Describe returns the metadata for one registered table.
func (s *Session) Describe(name string) (TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return TableInfo{}, ErrClosed
	}
	if info, ok := s.tables[query.SanitizeName(name)]; ok {
		return info, nil
	}
	return TableInfo{}, &NotFoundError{Name: name, Registered: s.tableNamesLocked()}
}

// List returns all registered tables sorted by name.
func (s *Session) List() ([]TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	infos := make([]TableInfo, 0, len(s.tables))
	for _, info := range s.tables {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Sample returns the first n rows of a registered table.
func (s *Session) Sample(ctx context.Context, name string, n int) (*table.Table, error) {
	info, err := s.Describe(name)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", query.QuoteIdent(info.Name), n))
}

// Count returns the row count of a registered table.
func (s *Session) Count(ctx context.Context, name string) (int, error) {
	info, err := s.Describe(name)
	if err != nil {
		return 0, err
	}
	return info.Rows, nil
}

// Drop removes a registered table. Dropping an unknown table is an error.
func (s *Session) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sqlName := query.SanitizeName(name)
	if _, ok := s.tables[sqlName]; !ok {
		return &NotFoundError{Name: name, Registered: s.tableNamesLocked()}
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(sqlName)); err != nil {
		return fmt.Errorf("drop %q: %w", sqlName, err)
	}
	delete(s.tables, sqlName)
	return nil
}

// Close releases the session. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tables = nil
	return s.db.Close()
}

func (s *Session) tableNamesLocked() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func createTableDDL(name string, cols []table.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(query.QuoteIdent(name))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(query.QuoteIdent(c.Name))
		b.WriteByte(' ')
		b.WriteString(sqliteType(c.Type))
	}
	b.WriteString(")")
	return b.String()
}

func sqliteType(t table.Type) string {
	switch t {
	case table.Int, table.Bool:
		return "INTEGER"
	case table.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

func bindValue(v any, t table.Type) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		if t == table.Float {
			return val.InexactFloat64()
		}
		return val.String()
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func scanRows(rows *sql.Rows) (*table.Table, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make([]table.Column, len(colNames))
	for i, name := range colNames {
		cols[i] = table.Column{Name: name, Type: table.Text}
	}
	typed := make([]bool, len(colNames))

	result := table.New(cols...)
	for rows.Next() {
		raw := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(raw))
		for i, v := range raw {
			switch val := v.(type) {
			case []byte:
				row[i] = string(val)
			default:
				row[i] = v
			}
			if row[i] != nil {
				if inferred, ok := scannedType(row[i]); ok && !typed[i] {
					result.Columns[i].Type = inferred
					typed[i] = true
				}
			}
		}
		if err := result.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scannedType(v any) (table.Type, bool) {
	switch v.(type) {
	case int64:
		return table.Int, true
	case float64:
		return table.Float, true
	case string:
		return table.Text, true
	default:
		return table.Text, false
	}
}
