package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// MemoryStore is a process-local comment store. A single RWMutex guards all
// state, so every operation is atomic and listings read a consistent
// snapshot. Returned values are copies.
type MemoryStore struct {
	mu         sync.RWMutex
	comments   map[string]domain.Comment
	identities map[string]domain.Identity
	idem       map[string]domain.Idempotency
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		comments:   make(map[string]domain.Comment),
		identities: make(map[string]domain.Identity),
		idem:       make(map[string]domain.Idempotency),
	}
}

func (m *MemoryStore) Admit(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.identities[c.Fingerprint]; ok {
		return &LockedError{Status: cur.Status, CommentID: cur.CommentID}
	}
	if _, ok := m.comments[c.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Status = domain.StatusPending
	m.comments[c.ID] = *c
	m.identities[c.Fingerprint] = domain.Identity{
		Fingerprint: c.Fingerprint,
		CommentID:   c.ID,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) SetModerationRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.ModerationRef = ref
	c.UpdatedAt = time.Now().UTC()
	m.comments[id] = c
	return nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, to domain.Status) (*domain.Comment, error) {
	if !domain.StatusPending.CanTransition(to) {
		return nil, ErrNotPending
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != domain.StatusPending {
		return nil, ErrNotPending
	}
	now := time.Now().UTC()
	c.Status = to
	c.DecidedAt = &now
	c.UpdatedAt = now
	m.comments[id] = c

	switch to {
	case domain.StatusApproved:
		m.identities[c.Fingerprint] = domain.Identity{
			Fingerprint: c.Fingerprint,
			CommentID:   c.ID,
			Status:      domain.StatusApproved,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	case domain.StatusRejected:
		if cur, ok := m.identities[c.Fingerprint]; ok && cur.CommentID == c.ID {
			delete(m.identities, c.Fingerprint)
		}
	}
	return &c, nil
}

// sortNewestFirst orders by CreatedAt DESC, ID DESC, matching GormStore.
func sortNewestFirst(cs []domain.Comment) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return cs[i].ID > cs[j].ID
	})
}

func (m *MemoryStore) ListByStatus(_ context.Context, status domain.Status, limit int) ([]domain.Comment, error) {
	m.mu.RLock()
	out := make([]domain.Comment, 0, len(m.comments))
	for _, c := range m.comments {
		if c.Status == status {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) findLocked(fp string) (domain.Comment, bool) {
	var best domain.Comment
	found := false
	for _, c := range m.comments {
		if c.Fingerprint != fp || !c.Status.Locks() {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best, found = c, true
		}
	}
	return best, found
}

func (m *MemoryStore) FindByFingerprint(_ context.Context, fp string) (*domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.findLocked(fp)
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) Identity(_ context.Context, fp string) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.identities[fp]
	return rec, ok, nil
}

func (m *MemoryStore) Revoke(_ context.Context, fp string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.findLocked(fp)
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.comments, c.ID)
	delete(m.identities, fp)
	return &c, nil
}

func (m *MemoryStore) RebuildIdentities(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]domain.Comment, 0, len(m.comments))
	for _, c := range m.comments {
		if c.Status.Locks() {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	locks := buildLocks(rows, time.Now().UTC())

	m.identities = make(map[string]domain.Identity, len(locks))
	for _, l := range locks {
		m.identities[l.Fingerprint] = l
	}
	return len(locks), nil
}

func (m *MemoryStore) ListOrphans(_ context.Context, cutoff time.Time, limit int) ([]domain.Comment, error) {
	m.mu.RLock()
	var out []domain.Comment
	for _, c := range m.comments {
		if c.Status == domain.StatusPending && c.ModerationRef == "" && c.CreatedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PruneRejected(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.comments {
		if c.Status == domain.StatusRejected && c.DecidedAt != nil && c.DecidedAt.Before(cutoff) {
			delete(m.comments, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ApprovedStats(_ context.Context) (int64, *time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	var last *time.Time
	for _, c := range m.comments {
		if c.Status != domain.StatusApproved {
			continue
		}
		n++
		if c.DecidedAt != nil && (last == nil || c.DecidedAt.After(*last)) {
			t := *c.DecidedAt
			last = &t
		}
	}
	return n, last, nil
}

func idemKey(fp, key string) string { return fp + "\x00" + key }

func (m *MemoryStore) GetIdempotency(_ context.Context, fp, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.idem[idemKey(fp, key)]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) SaveIdempotency(_ context.Context, fp, key, commentID string, status int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	k := idemKey(fp, key)
	if cur, ok := m.idem[k]; ok && cur.ExpiresAt.After(now) {
		return ErrDuplicate
	}
	m.idem[k] = domain.Idempotency{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Key:         key,
		CommentID:   commentID,
		Status:      status,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	return nil
}
