package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Store is a single identity's content cache: one sqlite file mirroring the
// slice of the remote server the UI has seen. All writes serialize through
// one logical writer; reads run concurrently and only ever observe committed
// state. The handle is owned by the caller and closed on logout.
type Store struct {
	db       *sql.DB
	codec    blobCodec
	observer *observer

	// writeMu is the single logical writer. Observer re-queries take the
	// read side so they never observe a transaction in progress.
	writeMu sync.RWMutex
	closed  bool
}

var (
	ErrNotFound    = errors.New("fedicache: not found")
	ErrStoreClosed = errors.New("fedicache: store closed")
)

// RowError reports a single row that could not be decoded. List reads keep
// going past the broken row and return the failure alongside the survivors.
type RowError struct {
	Table string
	ID    string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %s: %v", e.Table, e.ID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Table names, for use with Observe.
const (
	TableAccounts             = "accounts"
	TableRelationships        = "relationships"
	TableStatuses             = "statuses"
	TableContentToggles       = "status_content_toggles"
	TableAttachmentToggles    = "status_attachment_toggles"
	TableTimelineStatuses     = "timeline_statuses"
	TableTimelineGaps         = "timeline_gaps"
	TableStatusContexts       = "status_contexts"
	TableAccountPins          = "account_pins"
	TableLists                = "lists"
	TableListAccounts         = "list_accounts"
	TableNotifications        = "notifications"
	TableConversations        = "conversations"
	TableConversationAccounts = "conversation_accounts"
	TableFilters              = "filters"
	TableInstances            = "instances"
	TableAccountLists         = "account_lists"
	TableAccountListEntries   = "account_list_entries"
)

// Open opens (creating if necessary) the cache store at path and brings its
// schema up to date. passphrase seals the structured blob columns at rest;
// an empty passphrase leaves them plaintext. Use ":memory:" for a throwaway
// store.
func Open(path string, passphrase string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsnFor(path))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	if path == ":memory:" {
		// A pooled :memory: connection would open a second, empty database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(8)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := &Store{db: sqlDB, observer: newObserver()}

	if err := s.bootstrap(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("bootstrap store: %w", err)
	}

	if passphrase != "" {
		salt, err := s.loadOrCreateSalt()
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("load blob salt: %w", err)
		}
		s.codec.key = deriveKey(passphrase, salt)
	}

	if err := s.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return s, nil
}

func dsnFor(path string) string {
	pragmas := "?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	if path == ":memory:" {
		return "file::memory:" + pragmas
	}
	return "file:" + path + pragmas
}

// Close cancels all subscriptions and closes the underlying database.
func (s *Store) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	s.writeMu.Unlock()

	s.observer.closeAll()
	return s.db.Close()
}

const (
	sqlCreateMetaTable = `CREATE TABLE IF NOT EXISTS store_meta(
                        key text NOT NULL PRIMARY KEY,
                        value blob
                        )`
	sqlCreateLedgerTable = `CREATE TABLE IF NOT EXISTS schema_migrations(
                        name text NOT NULL PRIMARY KEY,
                        applied_at text NOT NULL
                        )`
)

// bootstrap creates the two tables everything else depends on: the migration
// ledger and the key/value meta table holding the blob salt.
func (s *Store) bootstrap() error {
	if _, err := s.db.Exec(sqlCreateMetaTable); err != nil {
		return err
	}
	_, err := s.db.Exec(sqlCreateLedgerTable)
	return err
}

// wrapWrite runs f inside a transaction under the writer lock and, once the
// transaction committed, wakes observers of the touched tables. A rolled
// back transaction wakes nobody: partial application is never observable.
func (s *Store) wrapWrite(tables []string, f func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	for {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := f(tx); err != nil {
			tx.Rollback()
			var serr *sqlite.Error
			if errors.As(err, &serr) && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		break
	}

	s.observer.broadcast(tables)
	return nil
}

// readConsistent runs f while no write transaction is in flight, so a
// multi-query read composes a single committed snapshot.
func (s *Store) readConsistent(f func() error) error {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return f()
}

// nullString maps "" to NULL for optional text columns.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func stringOrEmpty(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
