package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/mivox/fedicache/util"
)

// Migrations are forward-only: entries are appended, never rewritten after
// shipping. Each one runs in its own transaction together with its ledger
// row, so a failing step rolls back alone and leaves the store at the last
// applied migration.
type migration struct {
	name string
	run  func(tx *sql.Tx) error
}

var migrations = []migration{
	{"0001_accounts_statuses", migrateAccountsStatuses},
	{"0002_timelines", migrateTimelines},
	{"0003_feeds", migrateFeeds},
	{"0004_indices", migrateIndices},
}

// Migrate applies every migration not yet recorded in the ledger, in order.
// Re-running against an up-to-date store is a no-op.
func (s *Store) Migrate() error {
	applied, err := s.appliedMigrations()
	if err != nil {
		return fmt.Errorf("read migration ledger: %w", err)
	}
	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Printf("Applied migration %s", m.name)
	}
	return nil
}

func (s *Store) appliedMigrations() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *Store) applyMigration(m migration) error {
	return s.wrapWrite(nil, func(tx *sql.Tx) error {
		if err := m.run(tx); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`,
			m.name, util.FormatTime(time.Now()))
		return err
	})
}

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
		id text NOT NULL PRIMARY KEY,
		username text NOT NULL,
		acct text NOT NULL,
		display_name text,
		note text,
		url text,
		avatar_url text,
		header_url text,
		locked integer DEFAULT 0,
		bot integer DEFAULT 0,
		followers_count integer DEFAULT 0,
		following_count integer DEFAULT 0,
		statuses_count integer DEFAULT 0,
		emojis blob,
		fields blob,
		created_at text,
		moved_to_id text REFERENCES accounts(id) ON DELETE SET NULL DEFERRABLE INITIALLY DEFERRED
	)`

	sqlCreateRelationshipsTable = `CREATE TABLE IF NOT EXISTS relationships(
		account_id text NOT NULL PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		following integer DEFAULT 0,
		followed_by integer DEFAULT 0,
		requested integer DEFAULT 0,
		muting integer DEFAULT 0,
		muting_notifications integer DEFAULT 0,
		blocking integer DEFAULT 0,
		domain_blocking integer DEFAULT 0,
		endorsed integer DEFAULT 0,
		showing_reblogs integer DEFAULT 1
	)`

	sqlCreateStatusesTable = `CREATE TABLE IF NOT EXISTS statuses(
		id text NOT NULL PRIMARY KEY,
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at text NOT NULL,
		content text,
		spoiler_text text,
		visibility text DEFAULT 'public',
		sensitive integer DEFAULT 0,
		language text,
		url text,
		in_reply_to_id text,
		in_reply_to_account_id text,
		reblog_of_id text REFERENCES statuses(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		poll blob,
		card blob,
		application blob,
		attachments blob,
		mentions blob,
		tags blob,
		emojis blob,
		replies_count integer DEFAULT 0,
		reblogs_count integer DEFAULT 0,
		favourites_count integer DEFAULT 0,
		favourited integer DEFAULT 0,
		reblogged integer DEFAULT 0,
		muted integer DEFAULT 0,
		bookmarked integer DEFAULT 0,
		pinned integer DEFAULT 0
	)`

	// One row per status whose collapsed content the viewer expanded.
	sqlCreateContentTogglesTable = `CREATE TABLE IF NOT EXISTS status_content_toggles(
		status_id text NOT NULL PRIMARY KEY REFERENCES statuses(id) ON DELETE CASCADE
	)`

	// One row per status whose hidden attachments the viewer revealed.
	sqlCreateAttachmentTogglesTable = `CREATE TABLE IF NOT EXISTS status_attachment_toggles(
		status_id text NOT NULL PRIMARY KEY REFERENCES statuses(id) ON DELETE CASCADE
	)`
)

func migrateAccountsStatuses(tx *sql.Tx) error {
	for _, stmt := range []string{
		sqlCreateAccountsTable,
		sqlCreateRelationshipsTable,
		sqlCreateStatusesTable,
		sqlCreateContentTogglesTable,
		sqlCreateAttachmentTogglesTable,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	sqlCreateTimelineStatusesTable = `CREATE TABLE IF NOT EXISTS timeline_statuses(
		timeline_id text NOT NULL,
		status_id text NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		position integer,
		PRIMARY KEY (timeline_id, status_id)
	)`

	sqlCreateTimelineGapsTable = `CREATE TABLE IF NOT EXISTS timeline_gaps(
		timeline_id text NOT NULL,
		after_status_id text NOT NULL,
		before_status_id text NOT NULL,
		PRIMARY KEY (timeline_id, after_status_id)
	)`

	sqlCreateStatusContextsTable = `CREATE TABLE IF NOT EXISTS status_contexts(
		parent_id text NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		status_id text NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		section text NOT NULL,
		position integer NOT NULL,
		PRIMARY KEY (parent_id, section, position)
	)`

	sqlCreateAccountPinsTable = `CREATE TABLE IF NOT EXISTS account_pins(
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		status_id text NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		position integer NOT NULL,
		PRIMARY KEY (account_id, status_id)
	)`

	sqlCreateListsTable = `CREATE TABLE IF NOT EXISTS lists(
		id text NOT NULL PRIMARY KEY,
		title text NOT NULL
	)`

	sqlCreateListAccountsTable = `CREATE TABLE IF NOT EXISTS list_accounts(
		list_id text NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		PRIMARY KEY (list_id, account_id)
	)`
)

func migrateTimelines(tx *sql.Tx) error {
	for _, stmt := range []string{
		sqlCreateTimelineStatusesTable,
		sqlCreateTimelineGapsTable,
		sqlCreateStatusContextsTable,
		sqlCreateAccountPinsTable,
		sqlCreateListsTable,
		sqlCreateListAccountsTable,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications(
		id text NOT NULL PRIMARY KEY,
		notification_type text NOT NULL,
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		status_id text REFERENCES statuses(id) ON DELETE CASCADE,
		created_at text NOT NULL
	)`

	sqlCreateConversationsTable = `CREATE TABLE IF NOT EXISTS conversations(
		id text NOT NULL PRIMARY KEY,
		unread integer DEFAULT 0,
		last_status_id text REFERENCES statuses(id) ON DELETE SET NULL
	)`

	sqlCreateConversationAccountsTable = `CREATE TABLE IF NOT EXISTS conversation_accounts(
		conversation_id text NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		PRIMARY KEY (conversation_id, account_id)
	)`

	sqlCreateFiltersTable = `CREATE TABLE IF NOT EXISTS filters(
		id text NOT NULL PRIMARY KEY,
		phrase text NOT NULL,
		contexts blob NOT NULL,
		expires_at text,
		whole_word integer DEFAULT 0,
		irreversible integer DEFAULT 0
	)`

	sqlCreateInstancesTable = `CREATE TABLE IF NOT EXISTS instances(
		domain text NOT NULL PRIMARY KEY,
		title text,
		description text,
		version text,
		stats blob,
		contact_account_id text,
		updated_at text
	)`

	// Scratch collections for one-off account result sets. Released
	// explicitly by the consumer; entries cascade with the list row.
	sqlCreateAccountListsTable = `CREATE TABLE IF NOT EXISTS account_lists(
		id text NOT NULL PRIMARY KEY,
		created_at text NOT NULL
	)`

	sqlCreateAccountListEntriesTable = `CREATE TABLE IF NOT EXISTS account_list_entries(
		list_id text NOT NULL REFERENCES account_lists(id) ON DELETE CASCADE,
		account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		position integer NOT NULL,
		PRIMARY KEY (list_id, position)
	)`
)

func migrateFeeds(tx *sql.Tx) error {
	for _, stmt := range []string{
		sqlCreateNotificationsTable,
		sqlCreateConversationsTable,
		sqlCreateConversationAccountsTable,
		sqlCreateFiltersTable,
		sqlCreateInstancesTable,
		sqlCreateAccountListsTable,
		sqlCreateAccountListEntriesTable,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateIndices(tx *sql.Tx) error {
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_statuses_account_id ON statuses(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_reblog_of_id ON statuses(reblog_of_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_in_reply_to_id ON statuses(in_reply_to_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_statuses_timeline ON timeline_statuses(timeline_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_statuses_status ON timeline_statuses(status_id)`,
		`CREATE INDEX IF NOT EXISTS idx_status_contexts_parent ON status_contexts(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_status_contexts_status ON status_contexts(status_id)`,
		`CREATE INDEX IF NOT EXISTS idx_account_pins_account ON account_pins(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_account ON notifications(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_accounts_account ON conversation_accounts(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_list_accounts_list ON list_accounts(list_id)`,
		`CREATE INDEX IF NOT EXISTS idx_account_list_entries_account ON account_list_entries(account_id)`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
