// Package journal persists the trial history of tuning sessions in a
// SQLite database and exchanges it as JSON Lines for warm starts.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

const schema = `
CREATE TABLE IF NOT EXISTS trials (
	session_id   TEXT    NOT NULL,
	parameter_id INTEGER NOT NULL,
	params       TEXT,
	status       TEXT    NOT NULL,
	customized   INTEGER NOT NULL DEFAULT 0,
	value        TEXT,
	reward       REAL,
	created_at   TEXT    NOT NULL,
	updated_at   TEXT    NOT NULL,
	PRIMARY KEY (session_id, parameter_id)
);

CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(session_id, status);
`

// Journal records every trial a session touches. Each ledger transition
// upserts the trial's row, so the table always reflects the latest
// status regardless of result arrival order.
type Journal struct {
	db *sql.DB
}

// Open opens the journal database at dbPath, creating the schema if needed.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTrial upserts the ledger entry for one trial. The reward column
// is only populated for completed trials so aggregates never mix in
// placeholder values.
func (j *Journal) RecordTrial(sessionID string, entry store.TrialEntry) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	paramsJSON, err := marshalNullable(entry.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize trial params: %w", err)
	}
	valueJSON, err := marshalNullable(entry.Value)
	if err != nil {
		return fmt.Errorf("failed to serialize trial value: %w", err)
	}

	var reward any
	if entry.Status == store.StatusCompleted {
		reward = entry.Reward
	}
	customized := 0
	if entry.Customized {
		customized = 1
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = j.db.Exec(`
		INSERT INTO trials (session_id, parameter_id, params, status, customized, value, reward, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, parameter_id) DO UPDATE SET
			params     = excluded.params,
			status     = excluded.status,
			customized = excluded.customized,
			value      = excluded.value,
			reward     = excluded.reward,
			updated_at = excluded.updated_at`,
		sessionID, entry.ParameterID, paramsJSON, entry.Status, customized, valueJSON, reward, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record trial: %w", err)
	}
	return nil
}

// Sessions returns the IDs of all sessions present in the journal.
func (j *Journal) Sessions() ([]string, error) {
	rows, err := j.db.Query(`SELECT DISTINCT session_id FROM trials ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session ID: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Trials returns the full ledger of one session ordered by parameter ID.
func (j *Journal) Trials(sessionID string) ([]store.TrialEntry, error) {
	rows, err := j.db.Query(`
		SELECT parameter_id, params, status, customized, value, reward
		FROM trials WHERE session_id = ? ORDER BY parameter_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var entries []store.TrialEntry
	for rows.Next() {
		var (
			entry      store.TrialEntry
			paramsJSON sql.NullString
			valueJSON  sql.NullString
			customized int64
			reward     sql.NullFloat64
		)
		err := rows.Scan(&entry.ParameterID, &paramsJSON, &entry.Status, &customized, &valueJSON, &reward)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial row: %w", err)
		}

		if paramsJSON.Valid {
			if err := json.Unmarshal([]byte(paramsJSON.String), &entry.Params); err != nil {
				return nil, fmt.Errorf("failed to decode params for trial %d: %w", entry.ParameterID, err)
			}
		}
		if valueJSON.Valid {
			if err := json.Unmarshal([]byte(valueJSON.String), &entry.Value); err != nil {
				return nil, fmt.Errorf("failed to decode value for trial %d: %w", entry.ParameterID, err)
			}
		}
		entry.Customized = customized != 0
		if reward.Valid {
			entry.Reward = reward.Float64
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trials: %w", err)
	}
	return entries, nil
}

// Summary aggregates one session's ledger.
type Summary struct {
	SessionID   string
	Trials      int
	ByStatus    map[string]int
	BestReward  float64
	WorstReward float64
	HasRewards  bool
}

// Summarize computes trial counts and the reward range of one session.
func (j *Journal) Summarize(sessionID string) (*Summary, error) {
	summary := &Summary{
		SessionID: sessionID,
		ByStatus:  make(map[string]int),
	}

	rows, err := j.db.Query(`
		SELECT status, COUNT(*) FROM trials
		WHERE session_id = ? GROUP BY status`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary.ByStatus[status] = count
		summary.Trials += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	var minReward, maxReward sql.NullFloat64
	err = j.db.QueryRow(`
		SELECT MIN(reward), MAX(reward) FROM trials
		WHERE session_id = ? AND reward IS NOT NULL`, sessionID).Scan(&minReward, &maxReward)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward range: %w", err)
	}
	if minReward.Valid {
		summary.BestReward = minReward.Float64
		summary.WorstReward = maxReward.Float64
		summary.HasRewards = true
	}
	return summary, nil
}

// ExportRecords converts a session's completed trials into warm-start
// records. The raw reported value is preserved when available so that
// re-importing keeps intermediate detail; trials recorded before a value
// was attached fall back to the extracted reward.
func (j *Journal) ExportRecords(sessionID string) ([]tuner.TrialRecord, error) {
	entries, err := j.Trials(sessionID)
	if err != nil {
		return nil, err
	}

	var records []tuner.TrialRecord
	for _, entry := range entries {
		if entry.Status != store.StatusCompleted {
			continue
		}
		value := entry.Value
		if value == nil {
			value = entry.Reward
		}
		records = append(records, tuner.TrialRecord{
			Parameter: tuner.Params(entry.Params),
			Value:     value,
		})
	}
	return records, nil
}

// marshalNullable serializes v to JSON, mapping nil to SQL NULL.
func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if params, ok := v.(map[string]any); ok && params == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
