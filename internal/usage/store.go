// Package usage is the token usage ledger. Every LLM call the gateway
// makes lands here as one append-only row with its computed cost, and
// the CLI aggregates the rows by model, provider, operation or day.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetchat/fleetd/internal/config"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one LLM call.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id,omitempty"` // empty outside the agent
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Operation    string    `json:"operation"` // agent, generate, chat, stream, vision
}

// Summary holds aggregated token usage and cost totals.
type Summary struct {
	TotalRecords      int     `json:"records"`
	TotalInputTokens  int64   `json:"input_tokens"`
	TotalOutputTokens int64   `json:"output_tokens"`
	TotalCostUSD      float64 `json:"cost_usd"`
}

// DaySummary is the Summary of one UTC calendar day.
type DaySummary struct {
	Date string `json:"date"` // YYYY-MM-DD
	Summary
}

// Store is an append-only SQLite ledger. SQLite serializes writes, so
// every method is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Timestamps are stored as RFC 3339 UTC text so that lexical order is
// time order and date() works on them.
const tsLayout = time.RFC3339

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

// NewStore opens (creating if needed) the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS usage_records (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		session_id    TEXT,
		model         TEXT NOT NULL,
		provider      TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd      REAL NOT NULL,
		operation     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id);
	`)
	return err
}

// Record appends rec, assigning a UUIDv7 and the current time when
// they are unset.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, session_id, model, provider,
			 input_tokens, output_tokens, cost_usd, operation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, ts(rec.Timestamp), rec.SessionID, rec.Model, rec.Provider,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.Operation,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

const aggregates = `COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)`

func (sum *Summary) scanTargets() []any {
	return []any{&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD}
}

// Summary totals the records in [start, end).
func (s *Store) Summary(start, end time.Time) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRow(
		`SELECT `+aggregates+` FROM usage_records WHERE timestamp >= ? AND timestamp < ?`,
		ts(start), ts(end),
	).Scan(sum.scanTargets()...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByModel totals [start, end) per model.
func (s *Store) SummaryByModel(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("model", start, end)
}

// SummaryByProvider totals [start, end) per provider.
func (s *Store) SummaryByProvider(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("provider", start, end)
}

// SummaryByOperation totals [start, end) per operation.
func (s *Store) SummaryByOperation(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("operation", start, end)
}

// SummaryBySession totals [start, end) per session. Calls made outside
// a session group under "".
func (s *Store) SummaryBySession(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("session_id", start, end)
}

// column is always one of the constants above, never user input.
func (s *Store) summaryGroupedBy(column string, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT COALESCE(%s, ''), `+aggregates+`
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY 1`, column),
		ts(start), ts(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		sum := new(Summary)
		if err := rows.Scan(append([]any{&key}, sum.scanTargets()...)...); err != nil {
			return nil, fmt.Errorf("scan usage by %s: %w", column, err)
		}
		result[key] = sum
	}
	return result, rows.Err()
}

// Daily totals [start, end) per UTC day, oldest first. Days without
// calls are omitted.
func (s *Store) Daily(start, end time.Time) ([]DaySummary, error) {
	rows, err := s.db.Query(
		`SELECT substr(timestamp, 1, 10) AS day, `+aggregates+`
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY day
		 ORDER BY day`,
		ts(start), ts(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	var out []DaySummary
	for rows.Next() {
		var d DaySummary
		if err := rows.Scan(append([]any{&d.Date}, d.scanTargets()...)...); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(session_id, ''), model, provider,
		        input_tokens, output_tokens, cost_usd, operation
		 FROM usage_records
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var stamp string
		if err := rows.Scan(&r.ID, &stamp, &r.SessionID, &r.Model, &r.Provider,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.Operation); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		if r.Timestamp, err = time.Parse(tsLayout, stamp); err != nil {
			return nil, fmt.Errorf("usage record %s: bad timestamp %q: %w", r.ID, stamp, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ComputeCost prices a call from the per-million table. Models without
// an entry cost nothing (local Ollama models, or unpriced ones).
func ComputeCost(model string, inputTokens, outputTokens int, pricing map[string]config.PricingEntry) float64 {
	entry, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*entry.InputPerMillion + float64(outputTokens)/1e6*entry.OutputPerMillion
}
