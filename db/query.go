package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mivox/fedicache/domain"
	"github.com/mivox/fedicache/util"
)

// StatusInfo is one fully joined feed row: the status, its author, the
// viewer's relationship to the author when one is cached, the resolved
// reblog target, and the viewer's local reveal toggles.
type StatusInfo struct {
	Status             domain.Status
	Account            domain.Account
	Relationship       *domain.Relationship
	Reblog             *StatusInfo
	ShowingContent     bool
	ShowingAttachments bool
}

// DisplayStatus returns the row whose content gets rendered: the reblog
// target for a boost, the row itself otherwise.
func (si *StatusInfo) DisplayStatus() *StatusInfo {
	if si.Reblog != nil {
		return si.Reblog
	}
	return si
}

// AccountInfo is an account joined with the viewer's relationship and, for a
// moved account, the cached account it points at.
type AccountInfo struct {
	Account      domain.Account
	MovedTo      *domain.Account
	Relationship *domain.Relationship
}

// NotificationInfo is one notification row with its source account and
// related status resolved.
type NotificationInfo struct {
	Notification domain.Notification
	Account      AccountInfo
	Status       *StatusInfo
}

// ConversationInfo is one direct-message thread head with participants and
// the latest status resolved.
type ConversationInfo struct {
	Conversation domain.Conversation
	Accounts     []AccountInfo
	LastStatus   *StatusInfo
}

// ThreadRows is the materialized context around one status. Parent is nil
// when the focused status itself is no longer cached.
type ThreadRows struct {
	Ancestors   []StatusInfo
	Parent      *StatusInfo
	Descendants []StatusInfo
}

const (
	statusInfoColumns = `s.id, s.account_id, s.created_at, s.content, s.spoiler_text, s.visibility, s.sensitive,
		s.language, s.url, s.in_reply_to_id, s.in_reply_to_account_id, s.reblog_of_id,
		s.poll, s.card, s.application, s.attachments, s.mentions, s.tags, s.emojis,
		s.replies_count, s.reblogs_count, s.favourites_count,
		s.favourited, s.reblogged, s.muted, s.bookmarked, s.pinned,
		a.id, a.username, a.acct, a.display_name, a.note, a.url, a.avatar_url, a.header_url,
		a.locked, a.bot, a.followers_count, a.following_count, a.statuses_count,
		a.emojis, a.fields, a.created_at, a.moved_to_id,
		r.account_id, r.following, r.followed_by, r.requested, r.muting, r.muting_notifications,
		r.blocking, r.domain_blocking, r.endorsed, r.showing_reblogs,
		EXISTS(SELECT 1 FROM status_content_toggles ct WHERE ct.status_id = s.id),
		EXISTS(SELECT 1 FROM status_attachment_toggles at WHERE at.status_id = s.id)`

	statusInfoFrom = ` FROM statuses s
		INNER JOIN accounts a ON a.id = s.account_id
		LEFT JOIN relationships r ON r.account_id = s.account_id`

	accountInfoColumns = `a.id, a.username, a.acct, a.display_name, a.note, a.url, a.avatar_url, a.header_url,
		a.locked, a.bot, a.followers_count, a.following_count, a.statuses_count,
		a.emojis, a.fields, a.created_at, a.moved_to_id,
		r.account_id, r.following, r.followed_by, r.requested, r.muting, r.muting_notifications,
		r.blocking, r.domain_blocking, r.endorsed, r.showing_reblogs`

	accountInfoFrom = ` FROM accounts a
		LEFT JOIN relationships r ON r.account_id = a.id`

	// Unordered feeds sort by id the way the server's snowflakes sort:
	// longer id means larger, ties break lexically.
	orderByStatusID = ` ORDER BY length(s.id) DESC, s.id DESC`
)

type rowScanner interface {
	Scan(dest ...any) error
}

type accountScan struct {
	id, username, acct                            string
	displayName, note, url, avatarURL, headerURL  sql.NullString
	locked, bot                                   bool
	followersCount, followingCount, statusesCount int64
	emojis, fields                                []byte
	createdAt, movedToID                          sql.NullString
}

func (a *accountScan) dest() []any {
	return []any{
		&a.id, &a.username, &a.acct, &a.displayName, &a.note, &a.url, &a.avatarURL, &a.headerURL,
		&a.locked, &a.bot, &a.followersCount, &a.followingCount, &a.statusesCount,
		&a.emojis, &a.fields, &a.createdAt, &a.movedToID,
	}
}

func (s *Store) buildAccount(raw *accountScan) (domain.Account, error) {
	acc := domain.Account{
		ID:             raw.id,
		Username:       raw.username,
		Acct:           raw.acct,
		DisplayName:    stringOrEmpty(raw.displayName),
		Note:           stringOrEmpty(raw.note),
		URL:            stringOrEmpty(raw.url),
		AvatarURL:      stringOrEmpty(raw.avatarURL),
		HeaderURL:      stringOrEmpty(raw.headerURL),
		Locked:         raw.locked,
		Bot:            raw.bot,
		FollowersCount: raw.followersCount,
		FollowingCount: raw.followingCount,
		StatusesCount:  raw.statusesCount,
		MovedToID:      stringOrEmpty(raw.movedToID),
	}
	if raw.createdAt.Valid {
		t, err := util.ParseTime(raw.createdAt.String)
		if err != nil {
			return acc, &RowError{Table: TableAccounts, ID: raw.id, Err: err}
		}
		acc.CreatedAt = t
	}
	if err := s.codec.open(raw.emojis, &acc.Emojis); err != nil {
		return acc, &RowError{Table: TableAccounts, ID: raw.id, Err: err}
	}
	if err := s.codec.open(raw.fields, &acc.Fields); err != nil {
		return acc, &RowError{Table: TableAccounts, ID: raw.id, Err: err}
	}
	return acc, nil
}

type relationshipScan struct {
	accountID                                     sql.NullString
	following, followedBy, requested, muting      sql.NullBool
	mutingNotifications, blocking, domainBlocking sql.NullBool
	endorsed, showingReblogs                      sql.NullBool
}

func (r *relationshipScan) dest() []any {
	return []any{
		&r.accountID, &r.following, &r.followedBy, &r.requested, &r.muting,
		&r.mutingNotifications, &r.blocking, &r.domainBlocking, &r.endorsed, &r.showingReblogs,
	}
}

func (r *relationshipScan) build() *domain.Relationship {
	if !r.accountID.Valid {
		return nil
	}
	return &domain.Relationship{
		AccountID:           r.accountID.String,
		Following:           r.following.Bool,
		FollowedBy:          r.followedBy.Bool,
		Requested:           r.requested.Bool,
		Muting:              r.muting.Bool,
		MutingNotifications: r.mutingNotifications.Bool,
		Blocking:            r.blocking.Bool,
		DomainBlocking:      r.domainBlocking.Bool,
		Endorsed:            r.endorsed.Bool,
		ShowingReblogs:      r.showingReblogs.Bool,
	}
}

// scanStatusInfo decodes one statusInfoColumns row. A decode failure of a
// structured blob comes back as a *RowError so list readers can skip the row
// and keep going.
func (s *Store) scanStatusInfo(row rowScanner) (StatusInfo, error) {
	var (
		si                              StatusInfo
		createdAt, visibility           string
		content, spoiler, language, url sql.NullString
		inReplyToID, inReplyToAccountID sql.NullString
		reblogOfID                      sql.NullString
		poll, card, application         []byte
		attachments, mentions, tags     []byte
		emojis                          []byte
		acc                             accountScan
		rel                             relationshipScan
	)
	st := &si.Status
	dest := []any{
		&st.ID, &st.AccountID, &createdAt, &content, &spoiler, &visibility, &st.Sensitive,
		&language, &url, &inReplyToID, &inReplyToAccountID, &reblogOfID,
		&poll, &card, &application, &attachments, &mentions, &tags, &emojis,
		&st.RepliesCount, &st.ReblogsCount, &st.FavouritesCount,
		&st.Favourited, &st.Reblogged, &st.Muted, &st.Bookmarked, &st.Pinned,
	}
	dest = append(dest, acc.dest()...)
	dest = append(dest, rel.dest()...)
	dest = append(dest, &si.ShowingContent, &si.ShowingAttachments)
	if err := row.Scan(dest...); err != nil {
		return si, err
	}

	st.Content = stringOrEmpty(content)
	st.SpoilerText = stringOrEmpty(spoiler)
	st.Visibility = domain.Visibility(visibility)
	st.Language = stringOrEmpty(language)
	st.URL = stringOrEmpty(url)
	st.InReplyToID = stringOrEmpty(inReplyToID)
	st.InReplyToAccountID = stringOrEmpty(inReplyToAccountID)
	st.ReblogOfID = stringOrEmpty(reblogOfID)

	t, err := util.ParseTime(createdAt)
	if err != nil {
		return si, &RowError{Table: TableStatuses, ID: st.ID, Err: err}
	}
	st.CreatedAt = t

	rowErr := func(err error) error {
		return &RowError{Table: TableStatuses, ID: st.ID, Err: err}
	}
	if len(poll) > 0 {
		var p domain.Poll
		if err := s.codec.open(poll, &p); err != nil {
			return si, rowErr(err)
		}
		st.Poll = &p
	}
	if len(card) > 0 {
		var c domain.Card
		if err := s.codec.open(card, &c); err != nil {
			return si, rowErr(err)
		}
		st.Card = &c
	}
	if len(application) > 0 {
		var a domain.Application
		if err := s.codec.open(application, &a); err != nil {
			return si, rowErr(err)
		}
		st.Application = &a
	}
	if err := s.codec.open(attachments, &st.Attachments); err != nil {
		return si, rowErr(err)
	}
	if err := s.codec.open(mentions, &st.Mentions); err != nil {
		return si, rowErr(err)
	}
	if err := s.codec.open(tags, &st.Tags); err != nil {
		return si, rowErr(err)
	}
	if err := s.codec.open(emojis, &st.Emojis); err != nil {
		return si, rowErr(err)
	}

	si.Account, err = s.buildAccount(&acc)
	if err != nil {
		return si, err
	}
	si.Relationship = rel.build()
	return si, nil
}

func placeholders(n int) string {
	return "?" + strings.Repeat(", ?", n-1)
}

// collectStatusInfos drains a statusInfoColumns result set, skipping rows
// that fail to decode and joining their failures into one error returned
// alongside the survivors.
func (s *Store) collectStatusInfos(rows *sql.Rows) ([]StatusInfo, error) {
	defer rows.Close()
	var infos []StatusInfo
	var rowErrs []error
	for rows.Next() {
		si, err := s.scanStatusInfo(rows)
		if err != nil {
			var re *RowError
			if errors.As(err, &re) {
				rowErrs = append(rowErrs, err)
				continue
			}
			return nil, err
		}
		infos = append(infos, si)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return infos, errors.Join(rowErrs...)
}

// attachReblogs resolves the reblog target of every boost row with a second
// batched lookup. One level deep; a boost of a boost does not exist upstream.
func (s *Store) attachReblogs(infos []StatusInfo) error {
	var ids []string
	seen := make(map[string]bool)
	for i := range infos {
		if id := infos[i].Status.ReblogOfID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT `+statusInfoColumns+statusInfoFrom+` WHERE s.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return err
	}
	targets, rowErr := s.collectStatusInfos(rows)

	byID := make(map[string]StatusInfo, len(targets))
	for _, t := range targets {
		byID[t.Status.ID] = t
	}
	for i := range infos {
		if id := infos[i].Status.ReblogOfID; id != "" {
			if t, ok := byID[id]; ok {
				target := t
				infos[i].Reblog = &target
				infos[i].Status.Reblog = &target.Status
			}
		}
	}
	return rowErr
}

func (s *Store) queryStatusInfos(tail string, args ...any) ([]StatusInfo, error) {
	rows, err := s.db.Query(`SELECT `+statusInfoColumns+statusInfoFrom+tail, args...)
	if err != nil {
		return nil, err
	}
	infos, rowErr := s.collectStatusInfos(rows)
	if err := s.attachReblogs(infos); err != nil {
		rowErr = errors.Join(rowErr, err)
	}
	return infos, rowErr
}

// StatusInfoByID loads one fully joined status row.
func (s *Store) StatusInfoByID(id string) (StatusInfo, error) {
	var si StatusInfo
	err := s.readConsistent(func() error {
		row := s.db.QueryRow(`SELECT `+statusInfoColumns+statusInfoFrom+` WHERE s.id = ?`, id)
		var err error
		si, err = s.scanStatusInfo(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		infos := []StatusInfo{si}
		if err := s.attachReblogs(infos); err != nil {
			return err
		}
		si = infos[0]
		return nil
	})
	return si, err
}

func (s *Store) scanAccountInfo(row rowScanner) (AccountInfo, error) {
	var (
		ai  AccountInfo
		acc accountScan
		rel relationshipScan
	)
	dest := append(acc.dest(), rel.dest()...)
	if err := row.Scan(dest...); err != nil {
		return ai, err
	}
	var err error
	ai.Account, err = s.buildAccount(&acc)
	if err != nil {
		return ai, err
	}
	ai.Relationship = rel.build()
	return ai, nil
}

// AccountInfoByID loads one account with its relationship and, for a moved
// account, the cached target profile.
func (s *Store) AccountInfoByID(id string) (AccountInfo, error) {
	var ai AccountInfo
	err := s.readConsistent(func() error {
		row := s.db.QueryRow(`SELECT `+accountInfoColumns+accountInfoFrom+` WHERE a.id = ?`, id)
		var err error
		ai, err = s.scanAccountInfo(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ai.Account.MovedToID != "" {
			moved, err := s.scanAccountInfo(s.db.QueryRow(
				`SELECT `+accountInfoColumns+accountInfoFrom+` WHERE a.id = ?`, ai.Account.MovedToID))
			if err == nil {
				target := moved.Account
				ai.MovedTo = &target
				ai.Account.MovedTo = &target
			} else if err != sql.ErrNoRows {
				return err
			}
		}
		return nil
	})
	return ai, err
}

// TimelineStatuses reads a timeline's cached rows, newest first for id-sorted
// feeds and in stored order for ordered ones. limit <= 0 means everything.
func (s *Store) TimelineStatuses(tl domain.Timeline, limit int) ([]StatusInfo, error) {
	var infos []StatusInfo
	err := s.readConsistent(func() error {
		tail := ` INNER JOIN timeline_statuses ts ON ts.status_id = s.id WHERE ts.timeline_id = ?`
		if tl.Ordered() {
			tail += ` ORDER BY ts.position ASC`
		} else {
			tail += orderByStatusID
		}
		args := []any{tl.ID()}
		if limit > 0 {
			tail += ` LIMIT ?`
			args = append(args, limit)
		}
		var err error
		infos, err = s.queryStatusInfos(tail, args...)
		return err
	})
	return infos, err
}

// TimelineGaps reads a timeline's gap markers, newest edge first.
func (s *Store) TimelineGaps(tl domain.Timeline) ([]domain.Gap, error) {
	var gaps []domain.Gap
	err := s.readConsistent(func() error {
		rows, err := s.db.Query(`SELECT timeline_id, after_status_id, before_status_id FROM timeline_gaps
			WHERE timeline_id = ? ORDER BY length(after_status_id) DESC, after_status_id DESC`, tl.ID())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var g domain.Gap
			if err := rows.Scan(&g.TimelineID, &g.AfterStatusID, &g.BeforeStatusID); err != nil {
				return err
			}
			gaps = append(gaps, g)
		}
		return rows.Err()
	})
	return gaps, err
}

// PinnedStatuses reads one profile's pinned section in pin order.
func (s *Store) PinnedStatuses(accountID string) ([]StatusInfo, error) {
	var infos []StatusInfo
	err := s.readConsistent(func() error {
		var err error
		infos, err = s.queryStatusInfos(
			` INNER JOIN account_pins p ON p.status_id = s.id WHERE p.account_id = ? ORDER BY p.position ASC`,
			accountID)
		return err
	})
	return infos, err
}

// ContextOf reads the materialized thread around statusID. A vanished parent
// leaves Parent nil while the surrounding rows still render.
func (s *Store) ContextOf(statusID string) (ThreadRows, error) {
	var tr ThreadRows
	err := s.readConsistent(func() error {
		row := s.db.QueryRow(`SELECT `+statusInfoColumns+statusInfoFrom+` WHERE s.id = ?`, statusID)
		parent, err := s.scanStatusInfo(row)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return err
		default:
			infos := []StatusInfo{parent}
			if err := s.attachReblogs(infos); err != nil {
				return err
			}
			tr.Parent = &infos[0]
		}

		sectionTail := ` INNER JOIN status_contexts sc ON sc.status_id = s.id
			WHERE sc.parent_id = ? AND sc.section = ? ORDER BY sc.position ASC`
		if tr.Ancestors, err = s.queryStatusInfos(sectionTail, statusID, sectionAncestor); err != nil {
			return err
		}
		tr.Descendants, err = s.queryStatusInfos(sectionTail, statusID, sectionDescendant)
		return err
	})
	return tr, err
}

// NotificationInfos reads the notifications feed, newest first. limit <= 0
// means everything.
func (s *Store) NotificationInfos(limit int) ([]NotificationInfo, error) {
	var infos []NotificationInfo
	err := s.readConsistent(func() error {
		q := `SELECT n.id, n.notification_type, n.created_at, n.account_id, n.status_id
			FROM notifications n ORDER BY length(n.id) DESC, n.id DESC`
		var args []any
		if limit > 0 {
			q += ` LIMIT ?`
			args = append(args, limit)
		}
		rows, err := s.db.Query(q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		var statusIDs []string
		for rows.Next() {
			var (
				n         domain.Notification
				nType     string
				createdAt string
				statusID  sql.NullString
			)
			if err := rows.Scan(&n.ID, &nType, &createdAt, &n.AccountID, &statusID); err != nil {
				return err
			}
			n.Type = domain.NotificationType(nType)
			if n.CreatedAt, err = util.ParseTime(createdAt); err != nil {
				return err
			}
			n.StatusID = stringOrEmpty(statusID)
			if n.StatusID != "" {
				statusIDs = append(statusIDs, n.StatusID)
			}
			infos = append(infos, NotificationInfo{Notification: n})
		}
		if err := rows.Err(); err != nil {
			return err
		}

		statuses, rowErr := s.statusInfosByIDs(statusIDs)
		for i := range infos {
			ai, err := s.scanAccountInfo(s.db.QueryRow(
				`SELECT `+accountInfoColumns+accountInfoFrom+` WHERE a.id = ?`, infos[i].Notification.AccountID))
			if err != nil {
				return err
			}
			infos[i].Account = ai
			infos[i].Notification.Account = &infos[i].Account.Account
			if st, ok := statuses[infos[i].Notification.StatusID]; ok {
				target := st
				infos[i].Status = &target
				infos[i].Notification.Status = &target.Status
			}
		}
		return rowErr
	})
	return infos, err
}

// ConversationInfos reads the direct-message feed, newest conversation first.
func (s *Store) ConversationInfos() ([]ConversationInfo, error) {
	var infos []ConversationInfo
	err := s.readConsistent(func() error {
		rows, err := s.db.Query(`SELECT id, unread, last_status_id FROM conversations
			ORDER BY length(id) DESC, id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		var statusIDs []string
		for rows.Next() {
			var (
				c            domain.Conversation
				lastStatusID sql.NullString
			)
			if err := rows.Scan(&c.ID, &c.Unread, &lastStatusID); err != nil {
				return err
			}
			c.LastStatusID = stringOrEmpty(lastStatusID)
			if c.LastStatusID != "" {
				statusIDs = append(statusIDs, c.LastStatusID)
			}
			infos = append(infos, ConversationInfo{Conversation: c})
		}
		if err := rows.Err(); err != nil {
			return err
		}

		statuses, rowErr := s.statusInfosByIDs(statusIDs)
		for i := range infos {
			accounts, err := s.queryAccountInfos(
				` INNER JOIN conversation_accounts ca ON ca.account_id = a.id WHERE ca.conversation_id = ? ORDER BY a.acct ASC`,
				infos[i].Conversation.ID)
			if err != nil {
				return err
			}
			infos[i].Accounts = accounts
			for _, ai := range accounts {
				infos[i].Conversation.Accounts = append(infos[i].Conversation.Accounts, ai.Account)
			}
			if st, ok := statuses[infos[i].Conversation.LastStatusID]; ok {
				target := st
				infos[i].LastStatus = &target
				infos[i].Conversation.LastStatus = &target.Status
			}
		}
		return rowErr
	})
	return infos, err
}

// statusInfosByIDs batch-loads fully joined rows keyed by status id. Broken
// rows are left out and reported alongside the survivors.
func (s *Store) statusInfosByIDs(ids []string) (map[string]StatusInfo, error) {
	byID := make(map[string]StatusInfo, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	infos, rowErr := func() ([]StatusInfo, error) {
		rows, err := s.db.Query(
			`SELECT `+statusInfoColumns+statusInfoFrom+` WHERE s.id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return nil, err
		}
		return s.collectStatusInfos(rows)
	}()
	if infos == nil && rowErr != nil {
		return byID, rowErr
	}
	if err := s.attachReblogs(infos); err != nil {
		rowErr = errors.Join(rowErr, err)
	}
	for _, si := range infos {
		byID[si.Status.ID] = si
	}
	return byID, rowErr
}

func (s *Store) queryAccountInfos(tail string, args ...any) ([]AccountInfo, error) {
	rows, err := s.db.Query(`SELECT `+accountInfoColumns+accountInfoFrom+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var infos []AccountInfo
	var rowErrs []error
	for rows.Next() {
		ai, err := s.scanAccountInfo(rows)
		if err != nil {
			var re *RowError
			if errors.As(err, &re) {
				rowErrs = append(rowErrs, err)
				continue
			}
			return nil, err
		}
		infos = append(infos, ai)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return infos, errors.Join(rowErrs...)
}

// Filters reads every cached filter rule, expired ones included; the filter
// engine decides what still applies.
func (s *Store) Filters() ([]domain.Filter, error) {
	var filters []domain.Filter
	err := s.readConsistent(func() error {
		rows, err := s.db.Query(`SELECT id, phrase, contexts, expires_at, whole_word, irreversible FROM filters`)
		if err != nil {
			return err
		}
		defer rows.Close()
		var rowErrs []error
		for rows.Next() {
			var (
				f         domain.Filter
				contexts  []byte
				expiresAt sql.NullString
			)
			if err := rows.Scan(&f.ID, &f.Phrase, &contexts, &expiresAt, &f.WholeWord, &f.Irreversible); err != nil {
				return err
			}
			if err := s.codec.open(contexts, &f.Contexts); err != nil {
				rowErrs = append(rowErrs, &RowError{Table: TableFilters, ID: f.ID, Err: err})
				continue
			}
			if expiresAt.Valid {
				t, err := util.ParseTime(expiresAt.String)
				if err != nil {
					rowErrs = append(rowErrs, &RowError{Table: TableFilters, ID: f.ID, Err: err})
					continue
				}
				f.ExpiresAt = &t
			}
			filters = append(filters, f)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.Join(rowErrs...)
	})
	return filters, err
}

// Lists reads the cached list metadata, sorted by title.
func (s *Store) Lists() ([]domain.List, error) {
	var lists []domain.List
	err := s.readConsistent(func() error {
		rows, err := s.db.Query(`SELECT id, title FROM lists ORDER BY title ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var l domain.List
			if err := rows.Scan(&l.ID, &l.Title); err != nil {
				return err
			}
			lists = append(lists, l)
		}
		return rows.Err()
	})
	return lists, err
}

// ListAccounts reads the cached membership of one list.
func (s *Store) ListAccounts(listID string) ([]AccountInfo, error) {
	var infos []AccountInfo
	err := s.readConsistent(func() error {
		var err error
		infos, err = s.queryAccountInfos(
			` INNER JOIN list_accounts la ON la.account_id = a.id WHERE la.list_id = ? ORDER BY a.acct ASC`,
			listID)
		return err
	})
	return infos, err
}

// AccountListAccounts reads a scratch collection in its stored order.
func (s *Store) AccountListAccounts(id uuid.UUID) ([]AccountInfo, error) {
	var infos []AccountInfo
	err := s.readConsistent(func() error {
		var err error
		infos, err = s.queryAccountInfos(
			` INNER JOIN account_list_entries e ON e.account_id = a.id WHERE e.list_id = ? ORDER BY e.position ASC`,
			id.String())
		return err
	})
	return infos, err
}

// InstanceByDomain reads one cached server's metadata.
func (s *Store) InstanceByDomain(dom string) (domain.Instance, error) {
	var inst domain.Instance
	err := s.readConsistent(func() error {
		var (
			title, description, version sql.NullString
			stats                       []byte
			contactAccountID, updatedAt sql.NullString
		)
		err := s.db.QueryRow(`SELECT domain, title, description, version, stats, contact_account_id, updated_at
			FROM instances WHERE domain = ?`, dom).Scan(
			&inst.Domain, &title, &description, &version, &stats, &contactAccountID, &updatedAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		inst.Title = stringOrEmpty(title)
		inst.Description = stringOrEmpty(description)
		inst.Version = stringOrEmpty(version)
		inst.ContactAccountID = stringOrEmpty(contactAccountID)
		if len(stats) > 0 {
			var st domain.InstanceStats
			if err := s.codec.open(stats, &st); err != nil {
				return &RowError{Table: TableInstances, ID: inst.Domain, Err: err}
			}
			inst.Stats = &st
		}
		if updatedAt.Valid {
			if inst.UpdatedAt, err = util.ParseTime(updatedAt.String); err != nil {
				return err
			}
		}
		return nil
	})
	return inst, err
}
