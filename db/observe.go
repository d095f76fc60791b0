package db

import (
	"log"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/mivox/fedicache/domain"
)

// observer fans committed writes out to subscribers by table name. Wakeups
// coalesce: a subscriber that is still re-querying when further commits land
// runs its query once more afterwards and sees all of them.
type observer struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64
}

type subscriber struct {
	tables map[string]bool
	wake   chan struct{}
	done   chan struct{}
}

func newObserver() *observer {
	return &observer{subs: make(map[uint64]*subscriber)}
}

func (o *observer) add(tables []string) (uint64, *subscriber) {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	sub := &subscriber{
		tables: set,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = sub
	o.mu.Unlock()
	return id, sub
}

func (o *observer) remove(id uint64) {
	o.mu.Lock()
	sub, ok := o.subs[id]
	if ok {
		delete(o.subs, id)
	}
	o.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

func (o *observer) broadcast(tables []string) {
	if len(tables) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subs {
		for _, t := range tables {
			if sub.tables[t] {
				select {
				case sub.wake <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

func (o *observer) closeAll() {
	o.mu.Lock()
	subs := o.subs
	o.subs = make(map[uint64]*subscriber)
	o.mu.Unlock()
	for _, sub := range subs {
		close(sub.done)
	}
}

// Subscription is a live query. C delivers the current result on subscribe
// and again after every commit that changed it; results that compare equal
// to the previous one are suppressed. Cancel when done or the goroutine
// behind the subscription leaks.
type Subscription[T any] struct {
	C <-chan T

	cancel func()
	once   sync.Once
}

func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}

// Observe runs query now and again after every commit touching one of
// tables, delivering distinct results on the subscription channel. The query
// runs outside any write transaction, so it always sees a committed
// snapshot. A failing re-query is logged and skipped; the subscription stays
// live.
func Observe[T any](s *Store, tables []string, query func(*Store) (T, error)) *Subscription[T] {
	id, sub := s.observer.add(tables)
	out := make(chan T, 1)

	go func() {
		defer close(out)
		var last T
		var delivered bool
		for {
			result, err := query(s)
			if err != nil {
				if err == ErrStoreClosed {
					return
				}
				log.Printf("Observe re-query failed: %v", err)
			} else if !delivered || !reflect.DeepEqual(result, last) {
				last = result
				delivered = true
				// Replace a stale undelivered result rather than block.
				select {
				case out <- result:
				default:
					select {
					case <-out:
					default:
					}
					out <- result
				}
			}
			select {
			case <-sub.wake:
			case <-sub.done:
				return
			}
		}
	}()

	return &Subscription[T]{C: out, cancel: func() { s.observer.remove(id) }}
}

// ObserveTimeline watches one timeline's rendered rows, gaps included.
func (s *Store) ObserveTimeline(tl domain.Timeline, limit int) *Subscription[[]StatusInfo] {
	tables := []string{TableTimelineStatuses, TableTimelineGaps, TableStatuses, TableAccounts,
		TableRelationships, TableContentToggles, TableAttachmentToggles}
	return Observe(s, tables, func(s *Store) ([]StatusInfo, error) {
		return s.TimelineStatuses(tl, limit)
	})
}

// ObserveThread watches the materialized thread around one status.
func (s *Store) ObserveThread(statusID string) *Subscription[ThreadRows] {
	tables := []string{TableStatusContexts, TableStatuses, TableAccounts,
		TableRelationships, TableContentToggles, TableAttachmentToggles}
	return Observe(s, tables, func(s *Store) (ThreadRows, error) {
		return s.ContextOf(statusID)
	})
}

// ObserveNotifications watches the notifications feed.
func (s *Store) ObserveNotifications(limit int) *Subscription[[]NotificationInfo] {
	tables := []string{TableNotifications, TableStatuses, TableAccounts,
		TableRelationships, TableContentToggles, TableAttachmentToggles}
	return Observe(s, tables, func(s *Store) ([]NotificationInfo, error) {
		return s.NotificationInfos(limit)
	})
}

// ObserveConversations watches the direct-message conversation feed.
func (s *Store) ObserveConversations() *Subscription[[]ConversationInfo] {
	tables := []string{TableConversations, TableConversationAccounts, TableStatuses,
		TableAccounts, TableRelationships}
	return Observe(s, tables, func(s *Store) ([]ConversationInfo, error) {
		return s.ConversationInfos()
	})
}

// ObserveAccountList watches one scratch account collection.
func (s *Store) ObserveAccountList(id uuid.UUID) *Subscription[[]AccountInfo] {
	tables := []string{TableAccountListEntries, TableAccounts, TableRelationships}
	return Observe(s, tables, func(s *Store) ([]AccountInfo, error) {
		return s.AccountListAccounts(id)
	})
}
