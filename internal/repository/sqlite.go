package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"healthmon/internal/domain"
	"healthmon/internal/util"
)

var ErrArchiveNotInitialized = errors.New("snapshot archive is not initialized")

// SQLiteStore archives published snapshots in a private in-memory SQLite
// database. Only the newest capacity snapshots are retained.
type SQLiteStore struct {
	db       *sql.DB
	dsn      string
	capacity int
	logger   *util.AgentLogger
}

func NewSQLiteStore(capacity int, logger *util.AgentLogger) *SQLiteStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &SQLiteStore{
		dsn:      fmt.Sprintf("file:healthmon-%s?mode=memory&cache=shared", uuid.NewString()),
		capacity: capacity,
		logger:   logger,
	}
}

func (s *SQLiteStore) Init() error {
	var err error

	s.db, err = sql.Open("sqlite3", s.dsn)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	// The database lives only as long as its connection.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(0)
	s.db.SetConnMaxIdleTime(0)

	if err = s.db.Ping(); err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS snapshots (
		generation INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		overall_status TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);`

	_, err = s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}

	s.logger.Info("snapshot archive initialized", zap.Int("capacity", s.capacity))
	return nil
}

// StoreSnapshot inserts the snapshot and evicts the oldest rows beyond capacity.
func (s *SQLiteStore) StoreSnapshot(ctx context.Context, snapshot domain.HealthSnapshot) error {
	if s.db == nil {
		return ErrArchiveNotInitialized
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("error encoding snapshot %d: %w", snapshot.Generation, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots(generation, timestamp, overall_status, payload) VALUES(?, ?, ?, ?)",
		snapshot.Generation, snapshot.Timestamp.Unix(), snapshot.OverallStatus.String(), string(payload))
	if err != nil {
		return fmt.Errorf("error inserting snapshot %d: %w", snapshot.Generation, err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM snapshots WHERE generation NOT IN (SELECT generation FROM snapshots ORDER BY generation DESC LIMIT ?)",
		s.capacity)
	if err != nil {
		return fmt.Errorf("error evicting snapshots: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing snapshot %d: %w", snapshot.Generation, err)
	}
	return nil
}

// GetSnapshots returns archived snapshots whose timestamp in unix seconds
// lies within [startTime, endTime], oldest first.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, startTime, endTime int64, limit, offset int) ([]domain.HealthSnapshot, error) {
	if s.db == nil {
		return nil, ErrArchiveNotInitialized
	}

	query := "SELECT generation, payload FROM snapshots WHERE timestamp >= ? AND timestamp <= ? ORDER BY generation ASC"
	args := []interface{}{startTime, endTime}

	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if offset < 0 {
		offset = 0
	}
	query += " OFFSET ?"
	args = append(args, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var fetched []domain.HealthSnapshot

	for rows.Next() {
		var (
			generation uint64
			payload    string
			snapshot   domain.HealthSnapshot
		)
		if err := rows.Scan(&generation, &payload); err != nil {
			s.logger.Warn("error scanning snapshot row", zap.Error(err))
			continue
		}
		if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
			s.logger.Warn("error decoding archived snapshot", zap.Uint64("generation", generation), zap.Error(err))
			continue
		}
		fetched = append(fetched, snapshot)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return fetched, nil
}

// Count reports the number of retained snapshots.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrArchiveNotInitialized
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting snapshots: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
