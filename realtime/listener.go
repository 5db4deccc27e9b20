// Package realtime delivers notification row inserts to per-user
// subscribers over Postgres LISTEN/NOTIFY.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotificationChannel is the NOTIFY channel inserts into the notification
// table are published on.
const NotificationChannel = "notification_inserted"

type Event struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

func EncodeEvent(e Event) (string, error) {
	raw, err := json.Marshal(e)
	return string(raw), err
}

// Subscriber delivers insert events for a single user until unsubscribed.
type Subscriber interface {
	Subscribe(userID string, fn func(Event)) (unsubscribe func())
}

type conn interface {
	Ping() error
	Close() error
}

type Listener struct {
	conn   conn
	notify <-chan *pq.Notification

	mu   sync.Mutex
	next int
	subs map[string]map[int]func(Event)
}

func NewListener(dsn string) (*Listener, error) {
	pl := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			zap.S().Warnw("realtime listener event", "event", ev, "error", err)
		}
	})
	if err := pl.Listen(NotificationChannel); err != nil {
		pl.Close()
		return nil, err
	}
	return newListener(pl, pl.Notify), nil
}

func newListener(c conn, notify <-chan *pq.Notification) *Listener {
	return &Listener{
		conn:   c,
		notify: notify,
		subs:   make(map[string]map[int]func(Event)),
	}
}

func (l *Listener) Subscribe(userID string, fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.next
	l.next++
	if l.subs[userID] == nil {
		l.subs[userID] = make(map[int]func(Event))
	}
	l.subs[userID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[userID], id)
			if len(l.subs[userID]) == 0 {
				delete(l.subs, userID)
			}
		})
	}
}

// Run dispatches notifications until ctx is done or the channel closes.
func (l *Listener) Run(ctx context.Context) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-l.notify:
			if !ok {
				return
			}
			// nil after a reconnect; events sent while disconnected are lost
			if n == nil {
				continue
			}
			l.dispatch(n.Extra)
		case <-ping.C:
			if l.conn == nil {
				continue
			}
			if err := l.conn.Ping(); err != nil {
				zap.S().Warnw("realtime listener ping failed", "error", err)
			}
		}
	}
}

func (l *Listener) dispatch(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		zap.S().Warnw("dropping malformed realtime payload", "error", err)
		return
	}

	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.subs[ev.UserID]))
	for _, fn := range l.subs[ev.UserID] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
