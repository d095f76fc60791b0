package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mivox/fedicache/domain"
	"github.com/mivox/fedicache/util"
)

// Merge/upsert engine. Remote entities are always written whole,
// replace-by-primary-key; partial patches do not exist. Each exported
// operation is one transaction.

const (
	sqlUpsertAccount = `INSERT INTO accounts(id, username, acct, display_name, note, url, avatar_url, header_url,
		locked, bot, followers_count, following_count, statuses_count, emojis, fields, created_at, moved_to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		username = excluded.username, acct = excluded.acct, display_name = excluded.display_name,
		note = excluded.note, url = excluded.url, avatar_url = excluded.avatar_url, header_url = excluded.header_url,
		locked = excluded.locked, bot = excluded.bot,
		followers_count = excluded.followers_count, following_count = excluded.following_count,
		statuses_count = excluded.statuses_count, emojis = excluded.emojis, fields = excluded.fields,
		created_at = excluded.created_at, moved_to_id = excluded.moved_to_id`

	sqlUpsertRelationship = `INSERT INTO relationships(account_id, following, followed_by, requested, muting,
		muting_notifications, blocking, domain_blocking, endorsed, showing_reblogs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
		following = excluded.following, followed_by = excluded.followed_by, requested = excluded.requested,
		muting = excluded.muting, muting_notifications = excluded.muting_notifications,
		blocking = excluded.blocking, domain_blocking = excluded.domain_blocking,
		endorsed = excluded.endorsed, showing_reblogs = excluded.showing_reblogs`

	sqlUpsertStatus = `INSERT INTO statuses(id, account_id, created_at, content, spoiler_text, visibility, sensitive,
		language, url, in_reply_to_id, in_reply_to_account_id, reblog_of_id,
		poll, card, application, attachments, mentions, tags, emojis,
		replies_count, reblogs_count, favourites_count, favourited, reblogged, muted, bookmarked, pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id, created_at = excluded.created_at, content = excluded.content,
		spoiler_text = excluded.spoiler_text, visibility = excluded.visibility, sensitive = excluded.sensitive,
		language = excluded.language, url = excluded.url, in_reply_to_id = excluded.in_reply_to_id,
		in_reply_to_account_id = excluded.in_reply_to_account_id, reblog_of_id = excluded.reblog_of_id,
		poll = excluded.poll, card = excluded.card, application = excluded.application,
		attachments = excluded.attachments, mentions = excluded.mentions, tags = excluded.tags,
		emojis = excluded.emojis, replies_count = excluded.replies_count, reblogs_count = excluded.reblogs_count,
		favourites_count = excluded.favourites_count, favourited = excluded.favourited,
		reblogged = excluded.reblogged, muted = excluded.muted, bookmarked = excluded.bookmarked,
		pinned = excluded.pinned`

	sqlUpsertNotification = `INSERT INTO notifications(id, notification_type, account_id, status_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		notification_type = excluded.notification_type, account_id = excluded.account_id,
		status_id = excluded.status_id, created_at = excluded.created_at`

	sqlUpsertConversation = `INSERT INTO conversations(id, unread, last_status_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		unread = excluded.unread, last_status_id = excluded.last_status_id`

	sqlUpsertFilter = `INSERT INTO filters(id, phrase, contexts, expires_at, whole_word, irreversible)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		phrase = excluded.phrase, contexts = excluded.contexts, expires_at = excluded.expires_at,
		whole_word = excluded.whole_word, irreversible = excluded.irreversible`

	sqlUpsertList = `INSERT INTO lists(id, title) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title`

	sqlUpsertInstance = `INSERT INTO instances(domain, title, description, version, stats, contact_account_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
		title = excluded.title, description = excluded.description, version = excluded.version,
		stats = excluded.stats, contact_account_id = excluded.contact_account_id, updated_at = excluded.updated_at`
)

func (s *Store) upsertAccount(tx *sql.Tx, acc *domain.Account) error {
	if acc.MovedTo != nil {
		if err := s.upsertAccount(tx, acc.MovedTo); err != nil {
			return err
		}
	}

	movedToID := acc.MovedToID
	if movedToID == "" && acc.MovedTo != nil {
		movedToID = acc.MovedTo.ID
	}

	var emojis, fields []byte
	var err error
	if len(acc.Emojis) > 0 {
		if emojis, err = s.codec.seal(acc.Emojis); err != nil {
			return err
		}
	}
	if len(acc.Fields) > 0 {
		if fields, err = s.codec.seal(acc.Fields); err != nil {
			return err
		}
	}

	_, err = tx.Exec(sqlUpsertAccount,
		acc.ID, acc.Username, acc.Acct, acc.DisplayName, acc.Note, acc.URL, acc.AvatarURL, acc.HeaderURL,
		acc.Locked, acc.Bot, acc.FollowersCount, acc.FollowingCount, acc.StatusesCount,
		emojis, fields, util.FormatTime(acc.CreatedAt), nullString(movedToID),
	)
	return err
}

func (s *Store) upsertStatus(tx *sql.Tx, st *domain.Status) error {
	if st.Account != nil {
		if err := s.upsertAccount(tx, st.Account); err != nil {
			return err
		}
	}
	if st.Reblog != nil {
		if err := s.upsertStatus(tx, st.Reblog); err != nil {
			return err
		}
	}

	accountID := st.AccountID
	if accountID == "" && st.Account != nil {
		accountID = st.Account.ID
	}
	reblogOfID := st.ReblogOfID
	if reblogOfID == "" && st.Reblog != nil {
		reblogOfID = st.Reblog.ID
	}

	blobs := make([][]byte, 7)
	for i, v := range []any{
		blobOrNil(st.Poll), blobOrNil(st.Card), blobOrNil(st.Application),
		sliceOrNil(len(st.Attachments), st.Attachments),
		sliceOrNil(len(st.Mentions), st.Mentions),
		sliceOrNil(len(st.Tags), st.Tags),
		sliceOrNil(len(st.Emojis), st.Emojis),
	} {
		b, err := s.codec.seal(v)
		if err != nil {
			return err
		}
		blobs[i] = b
	}

	_, err := tx.Exec(sqlUpsertStatus,
		st.ID, accountID, util.FormatTime(st.CreatedAt), st.Content, st.SpoilerText,
		string(st.Visibility), st.Sensitive, st.Language, st.URL,
		nullString(st.InReplyToID), nullString(st.InReplyToAccountID), nullString(reblogOfID),
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], blobs[5], blobs[6],
		st.RepliesCount, st.ReblogsCount, st.FavouritesCount,
		st.Favourited, st.Reblogged, st.Muted, st.Bookmarked, st.Pinned,
	)
	return err
}

// blobOrNil erases a typed nil pointer so the codec writes NULL for it.
func blobOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

func sliceOrNil[T any](n int, v []T) any {
	if n == 0 {
		return nil
	}
	return v
}

// UpsertAccounts writes a batch of accounts, replacing existing rows by id.
func (s *Store) UpsertAccounts(accounts []*domain.Account) error {
	return s.wrapWrite([]string{TableAccounts}, func(tx *sql.Tx) error {
		for _, acc := range accounts {
			if err := s.upsertAccount(tx, acc); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertRelationships writes relationship flag rows. The account rows must
// already be cached; relationships live and die with them.
func (s *Store) UpsertRelationships(rels []*domain.Relationship) error {
	return s.wrapWrite([]string{TableRelationships}, func(tx *sql.Tx) error {
		for _, rel := range rels {
			_, err := tx.Exec(sqlUpsertRelationship,
				rel.AccountID, rel.Following, rel.FollowedBy, rel.Requested, rel.Muting,
				rel.MutingNotifications, rel.Blocking, rel.DomainBlocking, rel.Endorsed, rel.ShowingReblogs)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertStatuses writes a batch of statuses, including embedded authors and
// reblog targets.
func (s *Store) UpsertStatuses(statuses []*domain.Status) error {
	return s.wrapWrite([]string{TableStatuses, TableAccounts}, func(tx *sql.Tx) error {
		for _, st := range statuses {
			if err := s.upsertStatus(tx, st); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertNotifications writes notification rows together with their embedded
// source accounts and statuses.
func (s *Store) UpsertNotifications(notifications []*domain.Notification) error {
	tables := []string{TableNotifications, TableStatuses, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		for _, n := range notifications {
			if n.Account != nil {
				if err := s.upsertAccount(tx, n.Account); err != nil {
					return err
				}
			}
			if n.Status != nil {
				if err := s.upsertStatus(tx, n.Status); err != nil {
					return err
				}
			}
			accountID := n.AccountID
			if accountID == "" && n.Account != nil {
				accountID = n.Account.ID
			}
			statusID := n.StatusID
			if statusID == "" && n.Status != nil {
				statusID = n.Status.ID
			}
			_, err := tx.Exec(sqlUpsertNotification,
				n.ID, string(n.Type), accountID, nullString(statusID), util.FormatTime(n.CreatedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertConversations writes conversation rows; the participant set of each
// conversation is replaced wholesale.
func (s *Store) UpsertConversations(conversations []*domain.Conversation) error {
	tables := []string{TableConversations, TableConversationAccounts, TableStatuses, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		for _, c := range conversations {
			for i := range c.Accounts {
				if err := s.upsertAccount(tx, &c.Accounts[i]); err != nil {
					return err
				}
			}
			if c.LastStatus != nil {
				if err := s.upsertStatus(tx, c.LastStatus); err != nil {
					return err
				}
			}
			lastStatusID := c.LastStatusID
			if lastStatusID == "" && c.LastStatus != nil {
				lastStatusID = c.LastStatus.ID
			}
			if _, err := tx.Exec(sqlUpsertConversation, c.ID, c.Unread, nullString(lastStatusID)); err != nil {
				return err
			}

			if _, err := tx.Exec(`DELETE FROM conversation_accounts WHERE conversation_id = ?`, c.ID); err != nil {
				return err
			}
			for i := range c.Accounts {
				_, err := tx.Exec(`INSERT INTO conversation_accounts(conversation_id, account_id) VALUES (?, ?)`,
					c.ID, c.Accounts[i].ID)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// UpsertInstance caches one server's metadata.
func (s *Store) UpsertInstance(inst *domain.Instance) error {
	return s.wrapWrite([]string{TableInstances}, func(tx *sql.Tx) error {
		stats, err := s.codec.seal(blobOrNil(inst.Stats))
		if err != nil {
			return err
		}
		_, err = tx.Exec(sqlUpsertInstance,
			inst.Domain, inst.Title, inst.Description, inst.Version, stats,
			nullString(inst.ContactAccountID), util.FormatTime(inst.UpdatedAt))
		return err
	})
}

// ReplaceFilters makes the given rule set the complete one: rules missing
// from it are deleted. The server is authoritative for total membership.
func (s *Store) ReplaceFilters(filters []domain.Filter) error {
	return s.wrapWrite([]string{TableFilters}, func(tx *sql.Tx) error {
		keep := make([]string, 0, len(filters))
		for _, f := range filters {
			contexts, err := s.codec.seal(f.Contexts)
			if err != nil {
				return err
			}
			var expiresAt any
			if f.ExpiresAt != nil {
				expiresAt = util.FormatTime(*f.ExpiresAt)
			}
			_, err = tx.Exec(sqlUpsertFilter, f.ID, f.Phrase, contexts, expiresAt, f.WholeWord, f.Irreversible)
			if err != nil {
				return err
			}
			keep = append(keep, f.ID)
		}
		return deleteAbsent(tx, "filters", "id", "", "", keep)
	})
}

// ReplaceLists makes the given list metadata the complete set.
func (s *Store) ReplaceLists(lists []domain.List) error {
	return s.wrapWrite([]string{TableLists}, func(tx *sql.Tx) error {
		keep := make([]string, 0, len(lists))
		for _, l := range lists {
			if _, err := tx.Exec(sqlUpsertList, l.ID, l.Title); err != nil {
				return err
			}
			keep = append(keep, l.ID)
		}
		return deleteAbsent(tx, "lists", "id", "", "", keep)
	})
}

// ReplaceListAccounts makes accounts the complete membership of one list.
func (s *Store) ReplaceListAccounts(listID string, accounts []*domain.Account) error {
	return s.wrapWrite([]string{TableListAccounts, TableAccounts}, func(tx *sql.Tx) error {
		keep := make([]string, 0, len(accounts))
		for _, acc := range accounts {
			if err := s.upsertAccount(tx, acc); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT OR IGNORE INTO list_accounts(list_id, account_id) VALUES (?, ?)`,
				listID, acc.ID)
			if err != nil {
				return err
			}
			keep = append(keep, acc.ID)
		}
		return deleteAbsent(tx, "list_accounts", "account_id", "list_id", listID, keep)
	})
}

// ReplacePinnedStatuses makes statuses the complete pinned section of one
// profile, in the given order.
func (s *Store) ReplacePinnedStatuses(accountID string, statuses []*domain.Status) error {
	tables := []string{TableAccountPins, TableStatuses, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		keep := make([]string, 0, len(statuses))
		for i, st := range statuses {
			if err := s.upsertStatus(tx, st); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO account_pins(account_id, status_id, position) VALUES (?, ?, ?)
				ON CONFLICT(account_id, status_id) DO UPDATE SET position = excluded.position`,
				accountID, st.ID, i)
			if err != nil {
				return err
			}
			keep = append(keep, st.ID)
		}
		return deleteAbsent(tx, "account_pins", "status_id", "account_id", accountID, keep)
	})
}

// deleteAbsent prunes rows of table whose keyCol is not in keep, optionally
// scoped by whereCol = whereVal. An empty keep list clears the whole scope.
func deleteAbsent(tx *sql.Tx, table, keyCol, whereCol, whereVal string, keep []string) error {
	var sb strings.Builder
	args := make([]any, 0, len(keep)+1)
	sb.WriteString("DELETE FROM " + table)
	sb.WriteString(" WHERE ")
	if whereCol != "" {
		sb.WriteString(whereCol + " = ? AND ")
		args = append(args, whereVal)
	}
	if len(keep) == 0 {
		// Nothing survives; strip the dangling AND / WHERE.
		q := strings.TrimSuffix(sb.String(), " AND ")
		q = strings.TrimSuffix(q, " WHERE ")
		_, err := tx.Exec(q, args...)
		return err
	}
	sb.WriteString(keyCol + " NOT IN (?" + strings.Repeat(", ?", len(keep)-1) + ")")
	for _, k := range keep {
		args = append(args, k)
	}
	_, err := tx.Exec(sb.String(), args...)
	return err
}

const (
	sectionAncestor   = "ancestor"
	sectionDescendant = "descendant"
)

// InsertContext materializes a thread's linear ancestor/descendant paths for
// parentID, pruning join rows past the new counts when the server-side
// thread shrank.
func (s *Store) InsertContext(parentID string, ancestors, descendants []*domain.Status) error {
	tables := []string{TableStatusContexts, TableStatuses, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		for _, section := range []struct {
			name     string
			statuses []*domain.Status
		}{
			{sectionAncestor, ancestors},
			{sectionDescendant, descendants},
		} {
			for i, st := range section.statuses {
				if err := s.upsertStatus(tx, st); err != nil {
					return err
				}
				_, err := tx.Exec(`INSERT OR REPLACE INTO status_contexts(parent_id, status_id, section, position)
					VALUES (?, ?, ?, ?)`, parentID, st.ID, section.name, i)
				if err != nil {
					return err
				}
			}
			_, err := tx.Exec(`DELETE FROM status_contexts WHERE parent_id = ? AND section = ? AND position >= ?`,
				parentID, section.name, len(section.statuses))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteStatus removes a status; reblogs of it, memberships, toggles and
// context rows cascade.
func (s *Store) DeleteStatus(id string) error {
	tables := []string{TableStatuses, TableTimelineStatuses, TableStatusContexts,
		TableContentToggles, TableAttachmentToggles, TableAccountPins,
		TableNotifications, TableConversations}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM statuses WHERE id = ?`, id)
		return err
	})
}

// DeleteAccount removes an account and everything hanging off it: statuses
// (and reblogs of them), relationship, pins, notifications, memberships.
func (s *Store) DeleteAccount(id string) error {
	tables := []string{TableAccounts, TableRelationships, TableStatuses,
		TableTimelineStatuses, TableStatusContexts, TableAccountPins,
		TableNotifications, TableConversationAccounts, TableListAccounts,
		TableAccountListEntries, TableContentToggles, TableAttachmentToggles}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, id)
		return err
	})
}

// DeleteNotification removes one notification row.
func (s *Store) DeleteNotification(id string) error {
	return s.wrapWrite([]string{TableNotifications}, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM notifications WHERE id = ?`, id)
		return err
	})
}

// ClearNotifications empties the notifications feed.
func (s *Store) ClearNotifications() error {
	return s.wrapWrite([]string{TableNotifications}, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM notifications`)
		return err
	})
}

// ClearTimeline drops a timeline's membership and gap rows; the statuses
// themselves stay cached for other feeds.
func (s *Store) ClearTimeline(tl domain.Timeline) error {
	return s.wrapWrite([]string{TableTimelineStatuses, TableTimelineGaps}, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM timeline_statuses WHERE timeline_id = ?`, tl.ID()); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM timeline_gaps WHERE timeline_id = ?`, tl.ID())
		return err
	})
}

// SetContentToggled records that the viewer expanded (or re-collapsed) a
// status' content-warning section.
func (s *Store) SetContentToggled(statusID string, shown bool) error {
	return s.wrapWrite([]string{TableContentToggles}, func(tx *sql.Tx) error {
		return setToggle(tx, "status_content_toggles", statusID, shown)
	})
}

// SetAttachmentsToggled records that the viewer revealed (or re-hid) a
// status' attachments.
func (s *Store) SetAttachmentsToggled(statusID string, shown bool) error {
	return s.wrapWrite([]string{TableAttachmentToggles}, func(tx *sql.Tx) error {
		return setToggle(tx, "status_attachment_toggles", statusID, shown)
	})
}

func setToggle(tx *sql.Tx, table, statusID string, shown bool) error {
	if shown {
		_, err := tx.Exec(fmt.Sprintf(`INSERT OR IGNORE INTO %s(status_id) VALUES (?)`, table), statusID)
		return err
	}
	_, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE status_id = ?`, table), statusID)
	return err
}

// CreateAccountList materializes a one-off ordered account collection (for
// example "boosted by") and returns its handle. The caller releases it with
// ReleaseAccountList when the consumer goes away.
func (s *Store) CreateAccountList(accounts []*domain.Account) (uuid.UUID, error) {
	id := uuid.New()
	tables := []string{TableAccountLists, TableAccountListEntries, TableAccounts}
	err := s.wrapWrite(tables, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO account_lists(id, created_at) VALUES (?, ?)`,
			id.String(), util.FormatTime(time.Now()))
		if err != nil {
			return err
		}
		return s.writeAccountListEntries(tx, id, accounts)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SetAccountListAccounts replaces the contents of a scratch collection.
func (s *Store) SetAccountListAccounts(id uuid.UUID, accounts []*domain.Account) error {
	tables := []string{TableAccountListEntries, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM account_list_entries WHERE list_id = ?`, id.String()); err != nil {
			return err
		}
		return s.writeAccountListEntries(tx, id, accounts)
	})
}

func (s *Store) writeAccountListEntries(tx *sql.Tx, id uuid.UUID, accounts []*domain.Account) error {
	for i, acc := range accounts {
		if err := s.upsertAccount(tx, acc); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO account_list_entries(list_id, account_id, position) VALUES (?, ?, ?)`,
			id.String(), acc.ID, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAccountList drops a scratch collection; its entries cascade.
func (s *Store) ReleaseAccountList(id uuid.UUID) error {
	return s.wrapWrite([]string{TableAccountLists, TableAccountListEntries}, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM account_lists WHERE id = ?`, id.String())
		return err
	})
}
