package db

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
	"github.com/pkg/errors"
)

// Episode lifecycle states. pending and acquiring episodes never have an
// audio path; ready episodes always do.
const (
	StatusPending   = "pending"
	StatusAcquiring = "acquiring"
	StatusReady     = "ready"
	StatusFailed    = "failed"
)

// Store owns all durable state: collections, episodes and tracked sources.
// Every mutation is a row-scoped update; no cross-episode locking exists or
// is needed, since each job works on exactly one episode id end-to-end.
type Store struct {
	DB *sqlx.DB
}

// Connect opens the database, verifies the connection and ensures the schema
// exists.
func Connect(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ensure schema")
	}

	return &Store{DB: conn}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
