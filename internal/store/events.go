package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"nopg/internal/logging"
)

type subscription struct {
	event string
	fn    Listener
	once  bool
}

type eventHub struct {
	mu   sync.Mutex
	next SubscriptionID
	subs map[SubscriptionID]subscription
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[SubscriptionID]subscription)}
}

func (h *eventHub) add(event string, fn Listener, once bool) SubscriptionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = subscription{event: event, fn: fn, once: once}
	return h.next
}

func (h *eventHub) remove(id SubscriptionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return false
	}
	delete(h.subs, id)
	return true
}

// wantsChanges reports whether any listener waits for document events.
func (h *eventHub) wantsChanges() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.event != EventTimeout {
			return true
		}
	}
	return false
}

// emit calls every listener registered for name, in registration order.
// One-shot listeners are removed before they run.
func (h *eventHub) emit(name string, ev Event) {
	h.mu.Lock()
	var ids []SubscriptionID
	for id, sub := range h.subs {
		if sub.event == name {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		sub := h.subs[id]
		if sub.once {
			delete(h.subs, id)
		}
		fns = append(fns, sub.fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *sqliteSession) On(event string, fn Listener) SubscriptionID {
	return s.hub.add(event, fn, false)
}

func (s *sqliteSession) Once(event string, fn Listener) SubscriptionID {
	return s.hub.add(event, fn, true)
}

func (s *sqliteSession) RemoveListener(id SubscriptionID) bool {
	return s.hub.remove(id)
}

const eventBatch = 500

// pollEvents delivers committed document changes to listeners of a
// non-transactional session until the session finishes.
func (s *sqliteSession) pollEvents(lastSeen int64) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	pruneEvery := time.Minute
	lastPrune := time.Time{}

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		if time.Since(lastPrune) >= pruneEvery {
			s.pruneEvents(ctx)
			lastPrune = time.Now()
		}

		if !s.hub.wantsChanges() {
			latest, err := latestEventID(ctx, s.db)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("event cursor refresh failed", logging.Error(err))
				}
				continue
			}
			lastSeen = latest
			continue
		}

		next, err := s.deliverEvents(ctx, lastSeen)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WarnWithContext(s.logger, "event poll failed", "store_event_poll_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "listeners may receive events late"),
			)
			continue
		}
		lastSeen = next
	}
}

func latestEventID(ctx context.Context, q queryer) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM events").Scan(&id)
	return id, err
}

func (s *sqliteSession) deliverEvents(ctx context.Context, after int64) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, doc_id, doc_type FROM events WHERE id > ? ORDER BY id LIMIT ?", after, eventBatch)
	if err != nil {
		return after, err
	}
	type row struct {
		id int64
		ev Event
	}
	var batch []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.ev.Name, &r.ev.DocumentID, &r.ev.DocumentType); err != nil {
			rows.Close()
			return after, err
		}
		batch = append(batch, r)
	}
	if err := rows.Close(); err != nil {
		return after, err
	}
	if err := rows.Err(); err != nil {
		return after, err
	}

	for _, r := range batch {
		s.hub.emit(r.ev.Name, r.ev)
		s.hub.emit(TypedEvent(r.ev.DocumentType, r.ev.Name), r.ev)
		s.hub.emit(EventNotification, r.ev)
		after = r.id
	}
	return after, nil
}

func (s *sqliteSession) pruneEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.opts.EventRetention).UTC().Format("2006-01-02T15:04:05.000Z")
	if _, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff); err != nil && ctx.Err() == nil {
		s.logger.Debug("event prune failed", logging.Error(err))
	}
}
