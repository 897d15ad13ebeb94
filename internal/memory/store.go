// Package memory implements the FlowState project-memory engine.
//
// A single SQLite database (modernc.org/sqlite, WAL mode, foreign keys on)
// holds projects, their components, problems with branching solution
// attempts, todos, learnings, sessions, and the intelligence tables used for
// session continuity. Every write that changes searchable text also updates
// the FTS5 token index inside the same transaction; an optional vector
// channel is updated after commit and may degrade without failing the write.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// PromotionThresholds decide when learned knowledge becomes permanent.
// A zero field means "use the configured value", so a threshold of exactly
// zero cannot be requested; pass a small positive rate such as 0.01 to
// accept almost any success rate.
type PromotionThresholds struct {
	MinSessions    int     `json:"min_sessions"`
	MinSuccessRate float64 `json:"min_success_rate"`
}

// DefaultThresholds are the promotion thresholds used when none are given.
func DefaultThresholds() PromotionThresholds {
	return PromotionThresholds{MinSessions: 3, MinSuccessRate: 0.8}
}

// Config holds memory store configuration.
type Config struct {
	DataDir                 string
	RecencyWindow           time.Duration
	RecentLearnings         int
	EmbedTimeout            time.Duration
	Promotion               PromotionThresholds
	ConfidenceAlpha         float64
	ActivePatternConfidence float64
	SkillMinConfidence      float64
}

// DefaultConfig returns the default configuration for the memory store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:                 filepath.Join(home, ".flowstate"),
		RecencyWindow:           48 * time.Hour,
		RecentLearnings:         10,
		EmbedTimeout:            5 * time.Second,
		Promotion:               DefaultThresholds(),
		ConfidenceAlpha:         0.3,
		ActivePatternConfidence: 0.7,
		SkillMinConfidence:      0.5,
	}
}

// withDefaults fills zero values so a partially populated Config works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = d.RecencyWindow
	}
	if c.RecentLearnings <= 0 {
		c.RecentLearnings = d.RecentLearnings
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.Promotion.MinSessions <= 0 {
		c.Promotion.MinSessions = d.Promotion.MinSessions
	}
	if c.Promotion.MinSuccessRate <= 0 {
		c.Promotion.MinSuccessRate = d.Promotion.MinSuccessRate
	}
	if c.ConfidenceAlpha <= 0 || c.ConfidenceAlpha > 1 {
		c.ConfidenceAlpha = d.ConfidenceAlpha
	}
	if c.ActivePatternConfidence <= 0 {
		c.ActivePatternConfidence = d.ActivePatternConfidence
	}
	if c.SkillMinConfidence <= 0 {
		c.SkillMinConfidence = d.SkillMinConfidence
	}
	return c
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory engine backed by SQLite + FTS5.
type Store struct {
	db          *sql.DB
	cfg         Config
	hooks       storeHooks
	writeMu     sync.Mutex
	lock        *flock.Flock
	vectors     VectorIndexer
	attachments AttachmentSource
	log         *slog.Logger

	degradedEmbeds atomic.Int64
}

// Option configures optional collaborators of a Store.
type Option func(*Store)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithVectorIndexer enables the vector channel of the indexer.
func WithVectorIndexer(v VectorIndexer) Option {
	return func(s *Store) { s.vectors = v }
}

// WithAttachmentSource wires the external attachment store used by Assemble.
func WithAttachmentSource(a AttachmentSource) Option {
	return func(s *Store) { s.attachments = a }
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type storeHooks struct {
	beginTx func(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) beginTxHook(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db, opts)
	}
	return s.db.BeginTx(ctx, opts)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, takes the single-writer lock,
// opens SQLite with WAL mode, and runs migrations.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.DataDir, "flowstate.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("memory: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("memory: data dir %s is in use by another process", cfg.DataDir)
	}

	dsn := "file:" + filepath.Join(cfg.DataDir, "flowstate.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := openDB("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("memory: pragma journal_mode: %w", err)
	}

	s := &Store{
		db:   db,
		cfg:  cfg,
		lock: lock,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection and releases the lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// DBPath returns the path of the SQLite database file.
func (s *Store) DBPath() string {
	return filepath.Join(s.cfg.DataDir, "flowstate.db")
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	for _, ddl := range []string{schema, indexSchema, intelligenceSchema} {
		if _, err := s.db.Exec(ddl); err != nil {
			return err
		}
	}
	for table, contentType := range evictionTriggers {
		trigger := fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %[1]s_evict AFTER DELETE ON %[1]s BEGIN
				DELETE FROM search_index WHERE content_type = '%[2]s' AND content_id = old.id;
				DELETE FROM cross_references
				WHERE (source_type = '%[2]s' AND source_id = old.id) OR (target_type = '%[2]s' AND target_id = old.id);
			END;`, table, contentType)
		if _, err := s.db.Exec(trigger); err != nil {
			return err
		}
	}
	for _, c := range addedColumns {
		if err := s.ensureColumn(c.table, c.column, c.decl); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn adds column to table unless PRAGMA table_info already lists it.
func (s *Store) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// ─── Transactions ────────────────────────────────────────────────────────────

// withTx runs fn in a write transaction. Writers are serialized in-process;
// the file lock keeps other processes out.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.beginTxHook(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	return nil
}

// withReadTx runs fn against one consistent snapshot.
func (s *Store) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.beginTxHook(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("memory: begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const timeLayout = "2006-01-02 15:04:05"

// Now returns the current UTC time in SQLite datetime format.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// since returns the SQLite timestamp for now minus d.
func since(d time.Duration) string {
	return time.Now().UTC().Add(-d).Format(timeLayout)
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func decodeJSON[T any](raw string) T {
	var v T
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &v)
	}
	return v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// exists reports whether a row with id exists in table.
func exists(ctx context.Context, q dbtx, table string, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// mustExist returns a NotFoundError when the row is absent.
func mustExist(ctx context.Context, q dbtx, table, entity string, id int64) error {
	ok, err := exists(ctx, q, table, id)
	if err != nil {
		return fmt.Errorf("memory: lookup %s: %w", entity, err)
	}
	if !ok {
		return notFound(entity, id)
	}
	return nil
}

func affectedOrNotFound(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// updateSet accumulates the SET clause of a partial update. Callers validate
// every field before the first set so a bad field applies none of them.
type updateSet struct {
	cols []string
	args []any
}

func (u *updateSet) set(col string, v any) {
	u.cols = append(u.cols, col+" = ?")
	u.args = append(u.args, v)
}

func (u *updateSet) expr(clause string, args ...any) {
	u.cols = append(u.cols, clause)
	u.args = append(u.args, args...)
}

func (u *updateSet) empty() bool { return len(u.cols) == 0 }

func (u *updateSet) exec(ctx context.Context, q dbtx, table string, id int64) (sql.Result, error) {
	query := "UPDATE " + table + " SET " + strings.Join(u.cols, ", ") + " WHERE id = ?"
	return q.ExecContext(ctx, query, append(u.args, id)...)
}
