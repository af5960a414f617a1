// Package sqlstore runs generated queries against a relational database and
// describes its schema for the query generator.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds database connection settings. DSN wins over the host parts.
type Config struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxRows  int // 0 returns every row
}

// DefaultConfig returns settings for a local SQLite file.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverSQLite,
		DSN:    "data/northwind.sqlite",
	}
}

func (c *Config) dsn() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		if c.DSN == "" {
			return "", fmt.Errorf("%w: sqlite3 requires a dsn", apperr.ErrInvalidInput)
		}
		if strings.HasPrefix(c.DSN, "file:") || strings.Contains(c.DSN, "?") {
			return c.DSN, nil
		}
		return c.DSN + "?_busy_timeout=5000", nil
	case DriverPostgres:
		if c.DSN != "" {
			return c.DSN, nil
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, sslMode), nil
	default:
		return "", fmt.Errorf("%w: unsupported driver %q", apperr.ErrInvalidInput, c.Driver)
	}
}

// Store executes queries and describes the schema. It implements
// analyst.QueryExecutor.
type Store struct {
	db      *sql.DB
	driver  string
	maxRows int
	logger  *slog.Logger

	schemaMu     sync.Mutex
	schema       string
	schemaLoaded bool
}

var _ analyst.QueryExecutor = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return New(db, cfg.Driver, cfg.MaxRows), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, driver string, maxRows int) *Store {
	return &Store{
		db:      db,
		driver:  driver,
		maxRows: maxRows,
		logger:  logging.WithComponent("sqlstore").With("driver", driver),
	}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Execute runs one query. Database errors are reported in QueryResult.Error
// with empty columns and rows; the returned error is reserved for
// cancellation.
func (s *Store) Execute(ctx context.Context, query string) (*analyst.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return failure(apperr.ErrNoQuery), nil
	}

	started := time.Now()
	result, err := s.run(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Debug("query failed", "error", err, "elapsed", time.Since(started))
		return failure(err), nil
	}
	s.logger.Debug("query finished", "rows", len(result.Rows), "elapsed", time.Since(started))
	return result, nil
}

func (s *Store) run(ctx context.Context, query string) (*analyst.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &analyst.QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if s.maxRows > 0 && len(out.Rows) >= s.maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func failure(err error) *analyst.QueryResult {
	return &analyst.QueryResult{Columns: []string{}, Rows: [][]any{}, Error: err.Error()}
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// Schema returns the table and column description handed to the query
// generator. The first successful description is cached; failures are not.
func (s *Store) Schema(ctx context.Context) (string, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaLoaded {
		return s.schema, nil
	}

	var (
		schema string
		err    error
	)
	switch s.driver {
	case DriverPostgres:
		schema, err = s.postgresSchema(ctx)
	default:
		schema, err = s.sqliteSchema(ctx)
	}
	if err != nil {
		return "", err
	}
	s.schema, s.schemaLoaded = schema, true
	return schema, nil
}

type column struct {
	name string
	typ  string
}

func (s *Store) sqliteSchema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY rowid")
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	var b strings.Builder
	for _, table := range tables {
		cols, err := s.sqliteColumns(ctx, table)
		if err != nil {
			return "", err
		}
		writeTable(&b, table, cols)
	}
	return b.String(), nil
}

func (s *Store) sqliteColumns(ctx context.Context, table string) ([]column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(table, "'", "''")))
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var (
			cid     int
			c       column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.name, &c.typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *Store) postgresSchema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = current_schema()
	ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	defer rows.Close()

	var (
		b       strings.Builder
		current string
		cols    []column
	)
	for rows.Next() {
		var table string
		var c column
		if err := rows.Scan(&table, &c.name, &c.typ); err != nil {
			return "", fmt.Errorf("describe schema: %w", err)
		}
		if table != current && current != "" {
			writeTable(&b, current, cols)
			cols = nil
		}
		current = table
		cols = append(cols, column{name: c.name, typ: strings.ToUpper(c.typ)})
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	if current != "" {
		writeTable(&b, current, cols)
	}
	return b.String(), nil
}

func writeTable(b *strings.Builder, table string, cols []column) {
	fmt.Fprintf(b, "Table: %s\n", table)
	for _, c := range cols {
		fmt.Fprintf(b, "  - %s (%s)\n", c.name, c.typ)
	}
	b.WriteString("\n")
}
