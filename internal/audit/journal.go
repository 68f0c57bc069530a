// Package audit keeps an append-only journal of ledger and booking events in
// Cassandra or Scylla.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/gocql/gocql"

	"github.com/kojjob/property-marketplace-sub000/internal/events"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

const insertEntry = `INSERT INTO ledger_audit
	(booking_id, occurred_at, entry_id, event_key, payment_id, actor_id, status, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Entry is one journal row.
type Entry struct {
	BookingID  string
	OccurredAt time.Time
	EntryID    gocql.UUID
	EventKey   string
	PaymentID  string
	ActorID    string
	Status     string
	Payload    string
}

// EntryFromEvent maps ev onto a journal row. Entry ids are time based so rows
// of one booking sort by when they were written.
func EntryFromEvent(ev events.Event) (Entry, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("encode payload: %w", err)
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Entry{
		BookingID:  ev.BookingID,
		OccurredAt: at,
		EntryID:    gocql.UUIDFromTime(at),
		EventKey:   ev.Key,
		PaymentID:  ev.PaymentID,
		ActorID:    ev.ActorID,
		Status:     ev.Status,
		Payload:    string(payload),
	}, nil
}

type Journal struct {
	session *gocql.Session
}

// NewJournal connects to hosts, creating keyspace and table when missing.
func NewJournal(hosts []string, keyspace string, timeout time.Duration) (*Journal, error) {
	if !keyspacePattern.MatchString(keyspace) {
		return nil, fmt.Errorf("invalid keyspace %q", keyspace)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect cassandra: %w", err)
	}
	err = session.Query(fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, keyspace)).Exec()
	session.Close()
	if err != nil {
		return nil, fmt.Errorf("create keyspace: %w", err)
	}

	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	session, err = cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect keyspace %s: %w", keyspace, err)
	}
	j := &Journal{session: session}
	if err := j.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) ensureSchema() error {
	err := j.session.Query(`CREATE TABLE IF NOT EXISTS ledger_audit (
		booking_id text,
		occurred_at timestamp,
		entry_id timeuuid,
		event_key text,
		payment_id text,
		actor_id text,
		status text,
		payload text,
		PRIMARY KEY ((booking_id), occurred_at, entry_id)
	) WITH CLUSTERING ORDER BY (occurred_at ASC, entry_id ASC)`).Exec()
	if err != nil {
		return fmt.Errorf("create ledger_audit: %w", err)
	}
	return nil
}

func (j *Journal) Publish(ctx context.Context, ev events.Event) error {
	e, err := EntryFromEvent(ev)
	if err != nil {
		return err
	}
	err = j.session.Query(insertEntry,
		e.BookingID, e.OccurredAt, e.EntryID, e.EventKey, e.PaymentID, e.ActorID, e.Status, e.Payload,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the journal of one booking in write order.
func (j *Journal) History(ctx context.Context, bookingID string) ([]Entry, error) {
	iter := j.session.Query(`SELECT booking_id, occurred_at, entry_id, event_key, payment_id, actor_id, status, payload
		FROM ledger_audit WHERE booking_id = ?`, bookingID).WithContext(ctx).Iter()

	var out []Entry
	var e Entry
	for iter.Scan(&e.BookingID, &e.OccurredAt, &e.EntryID, &e.EventKey, &e.PaymentID, &e.ActorID, &e.Status, &e.Payload) {
		out = append(out, e)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read audit history: %w", err)
	}
	return out, nil
}

func (j *Journal) Close() {
	j.session.Close()
}
