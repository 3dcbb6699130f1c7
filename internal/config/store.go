package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
)

// Entry is one persisted configuration value, scoped by category+key
// (spec §4.1 / §6, e.g. category "rate_limit", key "claude-3.tpm_budget").
type Entry struct {
	ID        int64     `db:"id" json:"id"`
	Category  string    `db:"category" json:"category"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

// AuditEntry records one mutation of the config store, per spec's audit
// trail requirement for every runtime-tunable threshold.
type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	Category  string    `db:"category" json:"category"`
	Key       string    `db:"key" json:"key"`
	OldValue  string    `db:"old_value" json:"old_value"`
	NewValue  string    `db:"new_value" json:"new_value"`
	Reason    string    `db:"reason" json:"reason"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// snapshot is the atomically-swapped view of merged config. defaults is
// the compiled-in base; persisted is what the database holds; env holds
// process-environment overrides applied last. Reads always resolve
// env -> persisted -> defaults, in that priority order.
type snapshot struct {
	defaults  map[string]string
	persisted map[string]string
	env       map[string]string
}

func (s *snapshot) resolve(category, key string) (string, bool) {
	full := category + "." + key
	if v, ok := s.env[full]; ok {
		return v, true
	}
	if v, ok := s.persisted[full]; ok {
		return v, true
	}
	if v, ok := s.defaults[full]; ok {
		return v, true
	}
	return "", false
}

// Store is the database-backed Config Store (spec component C1). It
// layers compiled defaults, DB-persisted entries, and environment
// overrides into one atomically-readable snapshot, and audits every
// mutation.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger

	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes Set/Reload against each other
}

// NewStore builds a Store seeded with defaults and environment overrides,
// then loads whatever is already persisted.
func NewStore(db *sqlx.DB, defaults map[string]string, env map[string]string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{db: db, logger: logger}

	if defaults == nil {
		defaults = map[string]string{}
	}
	if env == nil {
		env = map[string]string{}
	}

	snap := &snapshot{defaults: defaults, env: env, persisted: map[string]string{}}
	s.current.Store(snap)

	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every persisted entry from the database and atomically
// swaps the live snapshot, so concurrent readers never observe a partial
// merge.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, "SELECT id, category, key, value, updated_at, updated_by FROM config_entries"); err != nil {
		return apperrors.NewDatabaseError("reload config entries", err)
	}

	persisted := make(map[string]string, len(entries))
	for _, e := range entries {
		persisted[e.Category+"."+e.Key] = e.Value
	}

	prev := s.current.Load()
	next := &snapshot{defaults: prev.defaults, env: prev.env, persisted: persisted}
	s.current.Store(next)

	s.logger.WithFields(logging.PipelineFields("config_store", "reload").Count(len(entries)).ToLogrus()).Info("config store reloaded")
	return nil
}

func (s *Store) get(category, key string) (string, bool) {
	return s.current.Load().resolve(category, key)
}

// GetString returns the raw string value, or fallback when unset.
func (s *Store) GetString(category, key, fallback string) string {
	if v, ok := s.get(category, key); ok {
		return v
	}
	return fallback
}

// GetInt parses the value as an int, or returns fallback on missing/bad
// value.
func (s *Store) GetInt(category, key string, fallback int) int {
	v, ok := s.get(category, key)
	if !ok {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

// GetFloat parses the value as a float64, or returns fallback.
func (s *Store) GetFloat(category, key string, fallback float64) float64 {
	v, ok := s.get(category, key)
	if !ok {
		return fallback
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return fallback
	}
	return f
}

// GetBool parses the value as a bool ("true"/"false"), or returns
// fallback.
func (s *Store) GetBool(category, key string, fallback bool) bool {
	v, ok := s.get(category, key)
	if !ok {
		return fallback
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	default:
		return fallback
	}
}

// GetList parses the value as a JSON array of strings, or returns
// fallback.
func (s *Store) GetList(category, key string, fallback []string) []string {
	v, ok := s.get(category, key)
	if !ok {
		return fallback
	}
	var list []string
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		return fallback
	}
	return list
}

// GetObject parses the value as JSON and extracts query (a dotted/jq
// path like ".thresholds.high") from it using gojq, letting one stored
// JSON blob serve several related settings (spec §4.1 get_object).
func (s *Store) GetObject(category, key, query string) (interface{}, error) {
	v, ok := s.get(category, key)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("config entry %s.%s", category, key))
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(v), &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("config entry %s.%s is not valid JSON", category, key))
	}

	parsedQuery, err := gojq.Parse(query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("invalid query %q", query))
	}

	iter := parsedQuery.Run(doc)
	result, ok := iter.Next()
	if !ok || result == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("query %q matched nothing in %s.%s", query, category, key))
	}
	if err, isErr := result.(error); isErr {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("query %q failed against %s.%s", query, category, key))
	}

	return result, nil
}

// Set persists a new value for category.key, records an audit entry, and
// reloads the live snapshot so the change is immediately visible.
func (s *Store) Set(ctx context.Context, category, key, value, reason, updatedBy string) error {
	s.mu.Lock()

	var oldValue string
	_ = s.db.GetContext(ctx, &oldValue, "SELECT value FROM config_entries WHERE category = $1 AND key = $2", category, key)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return apperrors.NewDatabaseError("begin set transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO config_entries (category, key, value, updated_at, updated_by)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (category, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
	`, category, key, value, updatedBy)
	if err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return apperrors.NewDatabaseError("upsert config entry", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO config_audit_log (id, category, key, old_value, new_value, reason, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, uuid.New().String(), category, key, oldValue, value, reason, updatedBy)
	if err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return apperrors.NewDatabaseError("insert config audit entry", err)
	}

	if err := tx.Commit(); err != nil {
		s.mu.Unlock()
		return apperrors.NewDatabaseError("commit set transaction", err)
	}
	s.mu.Unlock()

	s.logger.WithFields(logging.PipelineFields("config_store", "set").
		Custom("category", category).Custom("key", key).Custom("reason", reason).ToLogrus()).
		Info("config entry updated")

	return s.Reload(ctx)
}

// ListAudit returns audit entries for category.key, most recent first,
// letting operators inspect who changed a threshold and why.
func (s *Store) ListAudit(ctx context.Context, category, key string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []AuditEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, category, key, old_value, new_value, reason, updated_by, created_at
		FROM config_audit_log
		WHERE category = $1 AND key = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, category, key, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list config audit log", err)
	}
	return entries, nil
}
