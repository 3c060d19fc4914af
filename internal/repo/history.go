package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/utils"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	vehicle_model TEXT NOT NULL,
	input_json    TEXT NOT NULL,
	result_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses (user_id, created_at DESC);
`

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryStore persists completed analyses per user in SQLite.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryStore opens (creating if needed) the database at path and runs migrations.
func NewHistoryStore(path string) (*HistoryStore, error) {
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &HistoryStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// SaveAnalysis records a successful prediction for userID and returns the stored record.
func (s *HistoryStore) SaveAnalysis(ctx context.Context, userID string, in models.GuidedInput, result models.PredictionResult) (models.AnalysisRecord, error) {
	if userID == "" {
		return models.AnalysisRecord{}, errors.New("user id is required")
	}
	rec := models.AnalysisRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Input:     in,
		Result:    result,
		CreatedAt: s.now().UTC(),
	}

	inputJSON, err := json.Marshal(in)
	if err != nil {
		return models.AnalysisRecord{}, fmt.Errorf("marshal input: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return models.AnalysisRecord{}, fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, vehicle_model, input_json, result_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, userID, in.VehicleModel, string(inputJSON), string(resultJSON), utils.FormatRFC3339(rec.CreatedAt),
	)
	if err != nil {
		return models.AnalysisRecord{}, fmt.Errorf("insert analysis: %w", err)
	}
	return rec, nil
}

// ListAnalyses returns the caller's analyses, newest first.
func (s *HistoryStore) ListAnalyses(ctx context.Context, req models.ListAnalysesRequest) ([]models.AnalysisRecord, error) {
	if req.UserID == "" {
		return nil, errors.New("user id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, user_id, input_json, result_json, created_at FROM analyses WHERE user_id = ?`
	args := []any{req.UserID}
	if !req.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, utils.FormatRFC3339(req.Since))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	records := make([]models.AnalysisRecord, 0)
	for rows.Next() {
		var (
			rec                         models.AnalysisRecord
			inputJSON, resultJSON, when string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &inputJSON, &resultJSON, &when); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(inputJSON), &rec.Input); err != nil {
			return nil, fmt.Errorf("decode input %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", rec.ID, err)
		}
		created, err := time.Parse(time.RFC3339Nano, when)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %s: %w", rec.ID, err)
		}
		rec.CreatedAt = created
		records = append(records, rec)
	}
	return records, rows.Err()
}
