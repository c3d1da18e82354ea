package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agentgraph/agentgraph/engine"
	"github.com/agentgraph/agentgraph/types"
)

// RunRecord is the persisted form of a terminal run. Context and the visit
// log are stored as JSON blobs; queries filter on the indexed columns.
type RunRecord struct {
	RunID         string `gorm:"primaryKey;size:64"`
	SessionID     string `gorm:"index;size:64"`
	UserID        string `gorm:"index;size:64"`
	GraphName     string `gorm:"index;size:255"`
	Status        string `gorm:"size:32"`
	FailureCode   string `gorm:"size:64"`
	FailureReason string
	StartedAt     time.Time
	EndedAt       time.Time
	ContextJSON   []byte
	VisitedJSON   []byte
	CreatedAt     time.Time
}

// SQLStore implements engine.TraceStore on a GORM database.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open creates a sqlite-backed trace store at path (":memory:" works) and
// migrates the schema.
func Open(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	return NewSQLStore(db, logger)
}

// NewSQLStore wraps an existing GORM database and migrates the schema.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate run records: %w", err)
	}
	return &SQLStore{db: db, logger: logger.With(zap.String("component", "trace_store"))}, nil
}

// SaveRun upserts the terminal snapshot of a run.
func (s *SQLStore) SaveRun(ctx context.Context, snapshot engine.Snapshot) error {
	contextJSON, err := json.Marshal(snapshot.Context)
	if err != nil {
		return fmt.Errorf("serialize run context: %w", err)
	}
	visitedJSON, err := json.Marshal(snapshot.Visited)
	if err != nil {
		return fmt.Errorf("serialize visit log: %w", err)
	}

	record := RunRecord{
		RunID:         snapshot.ID,
		SessionID:     snapshot.SessionID,
		UserID:        snapshot.UserID,
		GraphName:     snapshot.GraphName,
		Status:        string(snapshot.Status),
		FailureCode:   string(snapshot.FailureCode),
		FailureReason: snapshot.FailureReason,
		StartedAt:     snapshot.StartedAt,
		EndedAt:       snapshot.EndedAt,
		ContextJSON:   contextJSON,
		VisitedJSON:   visitedJSON,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save run %s: %w", snapshot.ID, err)
	}
	s.logger.Debug("run trace saved", zap.String("run_id", snapshot.ID))
	return nil
}

// LoadRun reads a persisted run back into a snapshot.
func (s *SQLStore) LoadRun(ctx context.Context, runID string) (*engine.Snapshot, error) {
	var record RunRecord
	err := s.db.WithContext(ctx).First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrRunNotFound, "run %q not persisted", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return record.toSnapshot()
}

// ListRuns returns persisted runs for a session, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]engine.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []RunRecord
	q := s.db.WithContext(ctx).Order("started_at desc").Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]engine.Snapshot, 0, len(records))
	for _, r := range records {
		snapshot, err := r.toSnapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, *snapshot)
	}
	return out, nil
}

func (r *RunRecord) toSnapshot() (*engine.Snapshot, error) {
	snapshot := &engine.Snapshot{
		ID:            r.RunID,
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		GraphName:     r.GraphName,
		Status:        engine.Status(r.Status),
		FailureCode:   types.ErrorCode(r.FailureCode),
		FailureReason: r.FailureReason,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
	}
	if len(r.ContextJSON) > 0 {
		if err := json.Unmarshal(r.ContextJSON, &snapshot.Context); err != nil {
			return nil, fmt.Errorf("decode run context: %w", err)
		}
	}
	if len(r.VisitedJSON) > 0 {
		if err := json.Unmarshal(r.VisitedJSON, &snapshot.Visited); err != nil {
			return nil, fmt.Errorf("decode visit log: %w", err)
		}
	}
	return snapshot, nil
}
