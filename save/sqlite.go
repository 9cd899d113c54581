package save

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps saves in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite save store needs a path")
	}
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS saves (
		story TEXT NOT NULL,
		slot  TEXT NOT NULL,
		id    TEXT NOT NULL,
		saved INTEGER NOT NULL,
		data  BLOB NOT NULL,
		PRIMARY KEY (story, slot)
	)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create saves table")
	}
	log.Infof("sqlite save store at %s", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, story, slot string, data []byte) (Entry, error) {
	e := newEntry(story, slot, len(data))
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO saves (story, slot, id, saved, data) VALUES (?, ?, ?, ?, ?)",
		story, slot, e.ID, e.Saved.UnixNano(), data,
	)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "save %s/%s", story, slot)
	}
	return e, nil
}

func (s *SQLiteStore) Get(ctx context.Context, story, slot string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM saves WHERE story = ? AND slot = ?", story, slot,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s/%s", story, slot)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context, story string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, id, saved, length(data) FROM saves WHERE story = ? ORDER BY slot", story,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", story)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Story: story}
		var saved int64
		if err := rows.Scan(&e.Slot, &e.ID, &saved, &e.Size); err != nil {
			return nil, errors.Wrap(err, "scan save")
		}
		e.Saved = time.Unix(0, saved).UTC()
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "list saves")
}

func (s *SQLiteStore) Delete(ctx context.Context, story, slot string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM saves WHERE story = ? AND slot = ?", story, slot)
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", story, slot)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0700)
	}
	return nil
}
