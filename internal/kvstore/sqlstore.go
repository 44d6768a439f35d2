package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

// Supported dialects. The value doubles as the database/sql driver name.
const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// DefaultTable is the table SQLStore uses when none is configured.
const DefaultTable = "copycat_kv"

// sqlTimeout bounds every statement SQLStore issues.
const sqlTimeout = 10 * time.Second

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SQLStore is a Store backed by a two-column table (k, v) in MySQL or
// PostgreSQL. Safe for concurrent use.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string

	getQuery    string
	setQuery    string
	removeQuery string
	keysQuery   string
}

// OpenSQLStore connects to dsn with the given dialect, verifies the
// connection and creates the table if it does not exist.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("opening sql store: invalid table name %q", table)
	}
	if dialect != MySQL && dialect != Postgres {
		return nil, fmt.Errorf("opening sql store: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sql store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := newSQLStore(db, dialect, table)

	ctx, cancel := context.WithTimeout(ctx, sqlTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // closing after failed ping
		return nil, fmt.Errorf("opening sql store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, s.createQuery()); err != nil {
		db.Close() //nolint:errcheck // closing after failed migration
		return nil, fmt.Errorf("opening sql store: creating table %s: %w", table, err)
	}
	return s, nil
}

func newSQLStore(db *sql.DB, dialect Dialect, table string) *SQLStore {
	s := &SQLStore{db: db, dialect: dialect, table: table}
	switch dialect {
	case Postgres:
		s.getQuery = fmt.Sprintf(`SELECT v FROM %s WHERE k = $1`, table)
		s.setQuery = fmt.Sprintf(`INSERT INTO %s (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`, table)
		s.removeQuery = fmt.Sprintf(`DELETE FROM %s WHERE k = $1`, table)
		s.keysQuery = fmt.Sprintf(`SELECT k FROM %s WHERE k LIKE $1 ESCAPE '\' ORDER BY k`, table)
	default:
		s.getQuery = fmt.Sprintf("SELECT v FROM %s WHERE k = ?", table)
		s.setQuery = fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)", table)
		s.removeQuery = fmt.Sprintf("DELETE FROM %s WHERE k = ?", table)
		s.keysQuery = fmt.Sprintf(`SELECT k FROM %s WHERE k LIKE ? ESCAPE '\\' ORDER BY k`, table)
	}
	return s
}

func (s *SQLStore) createQuery() string {
	if s.dialect == Postgres {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v TEXT NOT NULL)`, s.table)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k VARCHAR(768) NOT NULL PRIMARY KEY, v LONGTEXT NOT NULL) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin", s.table)
}

// escapeLike escapes the LIKE metacharacters in prefix so it matches
// literally.
func escapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// Get returns the value stored under key.
func (s *SQLStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	var v string
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %q: %w", key, err)
	}
	return v, true, nil
}

// Set upserts value under key.
func (s *SQLStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.setQuery, key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *SQLStore) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.removeQuery, key); err != nil {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

// Keys returns every key with the given prefix, sorted.
func (s *SQLStore) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, s.keysQuery, escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("listing keys %q: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("listing keys %q: %w", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys %q: %w", prefix, err)
	}
	return keys, nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
