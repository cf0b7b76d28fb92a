// Package planboard provides the SQLite-backed implementation of the
// planboard contracts. It is the durable counterpart of the in-memory
// store used by tests.
package planboard

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/usef/core/model"
)

// SQLiteStore persists PTU states, exchanged documents and the processed
// message log to a SQLite database. It implements planboard.PtuStore,
// planboard.DocumentStore and planboard.MessageLog.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path, ensures schema
// and registers the given connection groups.
func NewSQLiteStore(path string, groups ...model.ConnectionGroup) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Serialized access keeps the forward-only phase check atomic.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS connection_groups (
        id TEXT PRIMARY KEY,
        owner_role TEXT,
        owner_domain TEXT
    );
    CREATE TABLE IF NOT EXISTS ptu_states (
        group_id TEXT,
        day INTEGER,
        ptu_index INTEGER,
        phase INTEGER,
        PRIMARY KEY (group_id, day, ptu_index)
    );
    CREATE TABLE IF NOT EXISTS documents (
        sequence_number INTEGER,
        sender_domain TEXT,
        sender_role TEXT,
        recipient_domain TEXT,
        recipient_role TEXT,
        document_type TEXT,
        period INTEGER,
        group_id TEXT,
        status TEXT,
        expiration INTEGER,
        body BLOB,
        PRIMARY KEY (sequence_number, sender_domain)
    );
    CREATE TABLE IF NOT EXISTS processed_messages (
        message_id TEXT PRIMARY KEY,
        processed_at INTEGER
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.EnsureGroups(groups); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureGroups registers connection groups the node should track.
func (s *SQLiteStore) EnsureGroups(groups []model.ConnectionGroup) error {
	for _, g := range groups {
		if _, err := s.db.Exec(
			`INSERT OR REPLACE INTO connection_groups (id, owner_role, owner_domain) VALUES (?, ?, ?)`,
			g.ID, g.Owner.Role.String(), g.Owner.Domain); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionGroups lists the groups tracked by this node.
func (s *SQLiteStore) ConnectionGroups() ([]model.ConnectionGroup, error) {
	rows, err := s.db.Query(`SELECT id, owner_role, owner_domain FROM connection_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ConnectionGroup
	for rows.Next() {
		var g model.ConnectionGroup
		var role string
		if err := rows.Scan(&g.ID, &role, &g.Owner.Domain); err != nil {
			return nil, err
		}
		r, ok := model.ParseRole(role)
		if !ok {
			return nil, fmt.Errorf("connection group %s: unknown owner role %q", g.ID, role)
		}
		g.Owner.Role = r
		out = append(out, g)
	}
	return out, rows.Err()
}

// Phase returns the current phase of one (group, PTU) pair.
func (s *SQLiteStore) Phase(group string, ptu model.Ptu) (model.Phase, bool, error) {
	var phase int
	err := s.db.QueryRow(
		`SELECT phase FROM ptu_states WHERE group_id = ? AND day = ? AND ptu_index = ?`,
		group, dayUnix(ptu.Period), ptu.Index).Scan(&phase)
	if err == sql.ErrNoRows {
		return model.PhasePlan, false, nil
	}
	if err != nil {
		return model.PhasePlan, false, err
	}
	return model.Phase(phase), true, nil
}

// AdvancePhase moves the pair to phase, creating the state if absent.
// Writes to an equal or earlier phase are ignored.
func (s *SQLiteStore) AdvancePhase(group string, ptu model.Ptu, phase model.Phase) error {
	_, err := s.db.Exec(
		`INSERT INTO ptu_states (group_id, day, ptu_index, phase) VALUES (?, ?, ?, ?)
         ON CONFLICT (group_id, day, ptu_index)
         DO UPDATE SET phase = excluded.phase WHERE excluded.phase > ptu_states.phase`,
		group, dayUnix(ptu.Period), ptu.Index, int(phase))
	return err
}

// SaveDocument inserts or replaces the document row.
func (s *SQLiteStore) SaveDocument(doc model.Document) error {
	var exp int64
	if !doc.Expiration.IsZero() {
		exp = doc.Expiration.Unix()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO documents
         (sequence_number, sender_domain, sender_role, recipient_domain, recipient_role,
          document_type, period, group_id, status, expiration, body)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.SequenceNumber, doc.Sender.Domain, doc.Sender.Role.String(),
		doc.Recipient.Domain, doc.Recipient.Role.String(),
		string(doc.Type), dayUnix(doc.Period), doc.ConnectionGroup,
		string(doc.Status), exp, doc.Body)
	return err
}

// UpdateStatus sets the status of an existing document. Missing rows are
// left alone.
func (s *SQLiteStore) UpdateStatus(seq int64, senderDomain string, status model.DocumentStatus) error {
	_, err := s.db.Exec(
		`UPDATE documents SET status = ? WHERE sequence_number = ? AND sender_domain = ?`,
		string(status), seq, senderDomain)
	return err
}

// ToBeRecreated lists documents flagged for the re-creation sweep.
func (s *SQLiteStore) ToBeRecreated() ([]model.Document, error) {
	return s.queryDocuments(`SELECT sequence_number, sender_domain, sender_role,
        recipient_domain, recipient_role, document_type, period, group_id, status, expiration, body
        FROM documents WHERE status = ? ORDER BY sequence_number`, string(model.StatusToBeRecreated))
}

// DocumentsByDay lists the documents of the given period.
func (s *SQLiteStore) DocumentsByDay(period time.Time) ([]model.Document, error) {
	return s.queryDocuments(`SELECT sequence_number, sender_domain, sender_role,
        recipient_domain, recipient_role, document_type, period, group_id, status, expiration, body
        FROM documents WHERE period = ? ORDER BY sequence_number`, dayUnix(period))
}

// CleanupDay archives documents of the given period.
func (s *SQLiteStore) CleanupDay(period time.Time) error {
	_, err := s.db.Exec(
		`UPDATE documents SET status = ? WHERE period = ?`,
		string(model.StatusArchived), dayUnix(period))
	return err
}

// Processed reports whether the message ID was already handled.
func (s *SQLiteStore) Processed(messageID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM processed_messages WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records the ID, reporting whether it was new.
func (s *SQLiteStore) MarkProcessed(messageID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_messages (message_id, processed_at) VALUES (?, ?)`,
		messageID, time.Now().Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) queryDocuments(query string, args ...any) ([]model.Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Document
	for rows.Next() {
		var doc model.Document
		var senderRole, recipientRole, docType, status string
		var period, exp int64
		if err := rows.Scan(&doc.SequenceNumber, &doc.Sender.Domain, &senderRole,
			&doc.Recipient.Domain, &recipientRole, &docType, &period,
			&doc.ConnectionGroup, &status, &exp, &doc.Body); err != nil {
			return nil, err
		}
		if r, ok := model.ParseRole(senderRole); ok {
			doc.Sender.Role = r
		}
		if r, ok := model.ParseRole(recipientRole); ok {
			doc.Recipient.Role = r
		}
		doc.Type = model.DocumentType(docType)
		doc.Status = model.DocumentStatus(status)
		doc.Period = time.Unix(period, 0).UTC()
		if exp != 0 {
			doc.Expiration = time.Unix(exp, 0).UTC()
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func dayUnix(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).Unix()
}
