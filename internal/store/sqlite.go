package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports storage availability for the health endpoint.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS turns (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        user_message TEXT NOT NULL,
        agent_response TEXT NOT NULL,
        context TEXT,
        session_id TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_turns_user_id ON turns(user_id);
    CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);

    CREATE TABLE IF NOT EXISTS leads (
        lead_id TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        age TEXT NOT NULL DEFAULT '',
        country TEXT NOT NULL DEFAULT '',
        product_interest TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL CHECK (status IN ('new', 'collecting', 'confirming', 'confirmed', 'exit')),
        session_id TEXT NOT NULL,
        last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
        follow_up_count INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS follow_ups (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        lead_id TEXT NOT NULL,
        message TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        delivered BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (lead_id) REFERENCES leads (lead_id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Turn methods

// AppendTurn stores a new turn. Turns are immutable once written.
func (s *SQLiteStore) AppendTurn(t *Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	stmt, err := s.db.Prepare("INSERT INTO turns (id, user_id, timestamp, user_message, agent_response, context, session_id) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare turn insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(t.ID, t.UserID, t.Timestamp, t.UserMessage, t.AgentResponse, t.Context, t.SessionID)
	if err != nil {
		return fmt.Errorf("failed to execute turn insert: %w", err)
	}
	return nil
}

// GetTurnsByUserID returns a user's turns in chronological order.
func (s *SQLiteStore) GetTurnsByUserID(userID string, limit int, offset int) ([]Turn, error) {
	query := "SELECT id, user_id, timestamp, user_message, agent_response, context, session_id FROM turns WHERE user_id = ? ORDER BY timestamp ASC, rowid ASC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// GetRecentTurns returns the last n turns for a user, most recent first.
func (s *SQLiteStore) GetRecentTurns(userID string, n int) ([]Turn, error) {
	query := `
        SELECT id, user_id, timestamp, user_message, agent_response, context, session_id
        FROM turns
        WHERE user_id = ?
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?
    `
	rows, err := s.db.Query(query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// GetTurnsByIDs fetches specific turns for a user. The user filter keeps a
// stale or poisoned index entry from ever pulling another user's turn.
func (s *SQLiteStore) GetTurnsByIDs(userID string, ids []string) (map[string]Turn, error) {
	if len(ids) == 0 {
		return map[string]Turn{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf("SELECT id, user_id, timestamp, user_message, agent_response, context, session_id FROM turns WHERE user_id = ? AND id IN (%s)", placeholders)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns by ids: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Turn, len(turns))
	for _, t := range turns {
		byID[t.ID] = t
	}
	return byID, nil
}

func (s *SQLiteStore) CountTurns(userID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM turns WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

// DeleteTurnsByUserID removes all turns for a user and returns how many.
func (s *SQLiteStore) DeleteTurnsByUserID(userID string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM turns WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete turns: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var ctx sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Timestamp, &t.UserMessage, &t.AgentResponse, &ctx, &t.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		if ctx.Valid {
			t.Context = ctx.String
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Lead methods

func (s *SQLiteStore) CreateLead(lead *Lead) error {
	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if lead.LastActivity.IsZero() {
		lead.LastActivity = now
	}

	stmt, err := s.db.Prepare(`INSERT INTO leads
        (lead_id, name, age, country, product_interest, status, session_id, last_activity, follow_up_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare lead insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(lead.LeadID, lead.Name, lead.Age, lead.Country, lead.ProductInterest,
		string(lead.Status), lead.SessionID, lead.LastActivity, lead.FollowUpCount, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute lead insert: %w", err)
	}
	return nil
}

// GetLead returns nil, nil when the lead does not exist.
func (s *SQLiteStore) GetLead(leadID string) (*Lead, error) {
	var lead Lead
	var status string
	err := s.db.QueryRow(`SELECT lead_id, name, age, country, product_interest, status, session_id,
        last_activity, follow_up_count, created_at, updated_at FROM leads WHERE lead_id = ?`, leadID).
		Scan(&lead.LeadID, &lead.Name, &lead.Age, &lead.Country, &lead.ProductInterest, &status,
			&lead.SessionID, &lead.LastActivity, &lead.FollowUpCount, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	lead.Status = LeadStatus(status)
	return &lead, nil
}

func (s *SQLiteStore) UpdateLead(lead *Lead) error {
	lead.UpdatedAt = time.Now()

	stmt, err := s.db.Prepare(`UPDATE leads SET name = ?, age = ?, country = ?, product_interest = ?,
        status = ?, session_id = ?, last_activity = ?, follow_up_count = ?, updated_at = ? WHERE lead_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare lead update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(lead.Name, lead.Age, lead.Country, lead.ProductInterest, string(lead.Status),
		lead.SessionID, lead.LastActivity, lead.FollowUpCount, lead.UpdatedAt, lead.LeadID)
	if err != nil {
		return fmt.Errorf("failed to execute lead update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("lead not found, not updated")
	}
	return nil
}

func (s *SQLiteStore) ListLeads() ([]Lead, error) {
	rows, err := s.db.Query(`SELECT lead_id, name, age, country, product_interest, status, session_id,
        last_activity, follow_up_count, created_at, updated_at FROM leads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var lead Lead
		var status string
		if err := rows.Scan(&lead.LeadID, &lead.Name, &lead.Age, &lead.Country, &lead.ProductInterest,
			&status, &lead.SessionID, &lead.LastActivity, &lead.FollowUpCount, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		lead.Status = LeadStatus(status)
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// LeadStatusCounts returns how many leads sit in each status.
func (s *SQLiteStore) LeadStatusCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM leads GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query lead statistics: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan lead statistics row: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Follow-up methods

// SaveFollowUp records a generated follow-up message and returns its id.
func (s *SQLiteStore) SaveFollowUp(leadID, message string) (int64, error) {
	res, err := s.db.Exec("INSERT INTO follow_ups (lead_id, message, created_at, delivered) VALUES (?, ?, ?, FALSE)",
		leadID, message, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert follow-up: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// PopPendingFollowUp returns the oldest undelivered follow-up for a lead and
// marks it delivered, or nil when the queue is empty.
func (s *SQLiteStore) PopPendingFollowUp(leadID string) (*FollowUp, error) {
	var fu FollowUp
	err := s.db.QueryRow(`SELECT id, lead_id, message, created_at, delivered FROM follow_ups
        WHERE lead_id = ? AND delivered = FALSE ORDER BY created_at ASC, id ASC LIMIT 1`, leadID).
		Scan(&fu.ID, &fu.LeadID, &fu.Message, &fu.CreatedAt, &fu.Delivered)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending follow-up: %w", err)
	}

	if err := s.MarkFollowUpDelivered(fu.ID); err != nil {
		return nil, err
	}
	fu.Delivered = true
	return &fu, nil
}

func (s *SQLiteStore) MarkFollowUpDelivered(id int64) error {
	if _, err := s.db.Exec("UPDATE follow_ups SET delivered = TRUE WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to mark follow-up delivered: %w", err)
	}
	return nil
}
