package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dotcommander/continuity/internal/narrative"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS universe_versions (
	version_id   TEXT PRIMARY KEY,
	universe_id  TEXT NOT NULL,
	parent_id    TEXT,
	revision     INTEGER NOT NULL,
	document     TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES universe_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_universe_versions_universe
	ON universe_versions (universe_id);

CREATE TABLE IF NOT EXISTS active_universe (
	universe_id  TEXT PRIMARY KEY,
	version_id   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES universe_versions(version_id)
);
`

// SQLiteBackend keeps every saved universe state as an immutable row and moves
// a per-universe active pointer on each save.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) a universe database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBackend{db: db, now: time.Now}, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT universe_id FROM active_universe ORDER BY universe_id`)
	if err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan universe id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteBackend) Load(ctx context.Context, id string) (*narrative.NarrativeUniverse, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT v.document FROM active_universe a
		 JOIN universe_versions v ON v.version_id = a.version_id
		 WHERE a.universe_id = ?`, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load universe %s: %w", id, err)
	}
	return decode([]byte(doc))
}

// Save appends a version and points the universe at it in one transaction.
func (s *SQLiteBackend) Save(ctx context.Context, u *narrative.NarrativeUniverse) error {
	doc, err := encode(u)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT version_id FROM active_universe WHERE universe_id = ?`, u.ID).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read active version: %w", err)
	}

	versionID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO universe_versions (version_id, universe_id, parent_id, revision, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		versionID, u.ID, parent, int64(u.Revision), string(doc), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_universe (universe_id, version_id) VALUES (?, ?)
		 ON CONFLICT(universe_id) DO UPDATE SET version_id = excluded.version_id`,
		u.ID, versionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Versions lists the most recent versions of a universe, newest first.
func (s *SQLiteBackend) Versions(ctx context.Context, id string, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.version_id, v.parent_id, v.revision, v.created_at,
		        COALESCE(a.version_id = v.version_id, 0)
		 FROM universe_versions v
		 LEFT JOIN active_universe a ON a.universe_id = v.universe_id
		 WHERE v.universe_id = ?
		 ORDER BY v.rowid DESC
		 LIMIT ?`, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var (
			v        Version
			parent   sql.NullString
			revision int64
			created  string
		)
		if err := rows.Scan(&v.ID, &parent, &revision, &created, &v.Active); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.UniverseID = id
		v.ParentID = parent.String
		v.Revision = uint64(revision)
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// LoadVersion reads one stored version, checking it belongs to the universe.
func (s *SQLiteBackend) LoadVersion(ctx context.Context, id, versionID string) (*narrative.NarrativeUniverse, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM universe_versions WHERE version_id = ? AND universe_id = ?`,
		versionID, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", versionID, err)
	}
	return decode([]byte(doc))
}
