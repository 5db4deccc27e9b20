package tokentable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CarMarket/pushsync/models"
	"github.com/google/uuid"
)

type rowKey struct {
	userID string
	token  string
}

// MemoryTable is a Table held in process memory, enforcing the same
// (user_id, token) uniqueness as the Postgres schema.
type MemoryTable struct {
	mu   sync.Mutex
	rows map[rowKey]*models.PushToken
	Now  func() time.Time
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		rows: make(map[rowKey]*models.PushToken),
		Now:  time.Now,
	}
}

func (m *MemoryTable) Find(ctx context.Context, userID, token string) (*models.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[rowKey{userID, token}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *row
	return &out, nil
}

func (m *MemoryTable) DeactivateOthers(ctx context.Context, userID, deviceType, keepToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, row := range m.rows {
		if k.userID == userID && row.DeviceType == deviceType && k.token != keepToken && row.Active {
			row.Active = false
			row.LastUpdated = m.Now()
		}
	}
	return nil
}

func (m *MemoryTable) Upsert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := rowKey{row.UserID, row.Token}
	if existing, ok := m.rows[k]; ok {
		m.apply(existing, row)
		out := *existing
		return &out, nil
	}
	return m.insertLocked(row), nil
}

func (m *MemoryTable) UpdateByToken(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rows[rowKey{row.UserID, row.Token}]
	if !ok {
		return nil, ErrNotFound
	}
	m.apply(existing, row)
	out := *existing
	return &out, nil
}

func (m *MemoryTable) Insert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[rowKey{row.UserID, row.Token}]; ok {
		return nil, ErrConflict
	}
	return m.insertLocked(row), nil
}

func (m *MemoryTable) SetSignedIn(ctx context.Context, userID, token string, signedIn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[rowKey{userID, token}]
	if !ok {
		return ErrNotFound
	}
	row.SignedIn = signedIn
	row.LastUpdated = m.Now()
	return nil
}

func (m *MemoryTable) ListDeliverable(ctx context.Context, userID string) ([]models.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PushToken
	for k, row := range m.rows {
		if k.userID == userID && row.Active && row.SignedIn {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (m *MemoryTable) DeactivateToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, row := range m.rows {
		if k.token == token {
			row.Active = false
			row.LastUpdated = m.Now()
		}
	}
	return nil
}

func (m *MemoryTable) PurgeInactive(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, row := range m.rows {
		if !row.Active && row.LastUpdated.Before(before) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// Rows returns a copy of every row for the user.
func (m *MemoryTable) Rows(userID string) []models.PushToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PushToken
	for k, row := range m.rows {
		if k.userID == userID {
			out = append(out, *row)
		}
	}
	return out
}

func (m *MemoryTable) apply(dst *models.PushToken, src models.PushToken) {
	dst.DeviceType = src.DeviceType
	dst.SignedIn = src.SignedIn
	dst.Active = src.Active
	dst.LastUpdated = m.Now()
}

func (m *MemoryTable) insertLocked(row models.PushToken) *models.PushToken {
	stored := row
	stored.ID = uuid.NewString()
	stored.LastUpdated = m.Now()
	m.rows[rowKey{row.UserID, row.Token}] = &stored
	out := stored
	return &out
}
