package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"biteiq/internal/domain"
)

// Memory is a process-local Store.
type Memory struct {
	mu         sync.Mutex
	now        func() time.Time
	recipients map[int64]*memRecipient
	plans      map[string]domain.Plan
	history    map[int64][]memMeal
	dedup      map[string]time.Time
}

type memRecipient struct {
	r      domain.Recipient
	status string
	until  int64
}

type memMeal struct {
	title string
	day   string
}

func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		recipients: map[int64]*memRecipient{},
		plans:      map[string]domain.Plan{},
		history:    map[int64][]memMeal{},
		dedup:      map[string]time.Time{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) get(id int64) *memRecipient {
	rec, ok := m.recipients[id]
	if !ok {
		rec = &memRecipient{r: domain.Recipient{ID: id}, status: "inactive"}
		m.recipients[id] = rec
	}
	return rec
}

func (m *Memory) view(rec *memRecipient) domain.Recipient {
	r := rec.r
	r.SubscriptionActive = subscriptionActive(rec.status, rec.until, m.now())
	return r
}

func (m *Memory) EnsureRecipient(_ context.Context, id int64, username, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.get(id)
	if strings.TrimSpace(username) != "" {
		rec.r.Username = username
	}
	if strings.TrimSpace(firstName) != "" {
		rec.r.FirstName = firstName
	}
	return nil
}

func (m *Memory) Recipient(_ context.Context, id int64) (domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipients[id]
	if !ok {
		return domain.Recipient{}, fmt.Errorf("recipient %d: %w", id, domain.ErrNotFound)
	}
	return m.view(rec), nil
}

func (m *Memory) ListRecipients(context.Context) ([]domain.Recipient, error) {
	return m.list(func(*memRecipient) bool { return true }), nil
}

func (m *Memory) ListReminderRecipients(context.Context) ([]domain.Recipient, error) {
	return m.list(func(rec *memRecipient) bool { return rec.r.RemindersEnabled }), nil
}

func (m *Memory) list(keep func(*memRecipient) bool) []domain.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Recipient
	for _, rec := range m.recipients {
		if keep(rec) {
			out = append(out, m.view(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) UpsertProfile(_ context.Context, id int64, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(id).r.Profile = p
	return nil
}

func (m *Memory) SetReminders(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipients[id]
	if !ok {
		return fmt.Errorf("recipient %d: %w", id, domain.ErrNotFound)
	}
	rec.r.RemindersEnabled = enabled
	return nil
}

func (m *Memory) SetSubscription(_ context.Context, id int64, active bool, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipients[id]
	if !ok {
		return fmt.Errorf("recipient %d: %w", id, domain.ErrNotFound)
	}
	rec.status = "inactive"
	if active {
		rec.status = "active"
	}
	rec.until = 0
	if !until.IsZero() {
		rec.until = until.UnixMilli()
	}
	return nil
}

func (m *Memory) SubscriptionActive(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipients[id]
	if !ok {
		return false, nil
	}
	return subscriptionActive(rec.status, rec.until, m.now()), nil
}

func (m *Memory) SavePlan(_ context.Context, id int64, day time.Time, p domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[fmt.Sprintf("%d/%s", id, dateKey(day))] = p
	return nil
}

// SavedPlan returns a plan stored by SavePlan.
func (m *Memory) SavedPlan(id int64, day time.Time) (domain.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[fmt.Sprintf("%d/%s", id, dateKey(day))]
	return p, ok
}

func (m *Memory) AddMealHistory(_ context.Context, id int64, day time.Time, titles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			m.history[id] = append(m.history[id], memMeal{title: t, day: dateKey(day)})
		}
	}
	return nil
}

func (m *Memory) RecentMeals(_ context.Context, id int64, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := dateKey(since)
	seen := map[string]bool{}
	var out []string
	for _, meal := range m.history[id] {
		if meal.day >= cutoff && !seen[meal.title] {
			seen[meal.title] = true
			out = append(out, meal.title)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ClaimDedup(_ context.Context, key string, now, until time.Time) (bool, error) {
	if key == "" {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.dedup[key]; ok && cur.After(now) {
		return false, nil
	}
	m.dedup[key] = until
	return true, nil
}

func (m *Memory) ReleaseDedup(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dedup, key)
	return nil
}
