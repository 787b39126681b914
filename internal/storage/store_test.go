package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"biteiq/internal/domain"
	logx "biteiq/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "biteiq.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)

	return map[string]Store{"sqlite": sqlite, "memory": mem}
}

func TestRecipientLifecycle(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Recipient(ctx, 7)
			require.True(t, errors.Is(err, domain.ErrNotFound), "err = %v", err)
			require.True(t, errors.Is(st.SetReminders(ctx, 7, true), domain.ErrNotFound))

			require.NoError(t, st.EnsureRecipient(ctx, 7, "ana_k", "Ana"))
			require.NoError(t, st.EnsureRecipient(ctx, 7, "", ""))

			r, err := st.Recipient(ctx, 7)
			require.NoError(t, err)
			require.Equal(t, "ana_k", r.Username)
			require.Equal(t, "Ana", r.FirstName)
			require.False(t, r.Profile.Complete())
			require.False(t, r.SubscriptionActive)

			p := domain.Profile{Name: "Ana", Age: 29, Gender: "F", HeightCM: 165, WeightKG: 60, Activity: "medium", Diet: "none", GoalKG: 55}
			require.NoError(t, st.UpsertProfile(ctx, 7, p))
			require.NoError(t, st.SetReminders(ctx, 7, true))

			r, err = st.Recipient(ctx, 7)
			require.NoError(t, err)
			require.Equal(t, p, r.Profile)
			require.True(t, r.RemindersEnabled)

			// Upsert creates unknown recipients.
			require.NoError(t, st.UpsertProfile(ctx, 8, domain.Profile{Name: "Bo"}))

			all, err := st.ListRecipients(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, int64(7), all[0].ID)

			rem, err := st.ListReminderRecipients(ctx)
			require.NoError(t, err)
			require.Len(t, rem, 1)
			require.Equal(t, int64(7), rem[0].ID)
		})
	}
}

func TestSubscription(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			active, err := st.SubscriptionActive(ctx, 42)
			require.NoError(t, err)
			require.False(t, active)

			require.NoError(t, st.EnsureRecipient(ctx, 42, "", ""))
			require.NoError(t, st.SetSubscription(ctx, 42, true, time.Time{}))
			active, err = st.SubscriptionActive(ctx, 42)
			require.NoError(t, err)
			require.True(t, active)

			require.NoError(t, st.SetSubscription(ctx, 42, true, time.Now().Add(-time.Hour)))
			active, err = st.SubscriptionActive(ctx, 42)
			require.NoError(t, err)
			require.False(t, active, "expired subscription must be inactive")

			require.NoError(t, st.SetSubscription(ctx, 42, false, time.Time{}))
			r, err := st.Recipient(ctx, 42)
			require.NoError(t, err)
			require.False(t, r.SubscriptionActive)
		})
	}
}

func TestPlansAndHistory(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
			require.NoError(t, st.EnsureRecipient(ctx, 7, "", "Ana"))

			plan := domain.DefaultPlan()
			require.NoError(t, st.SavePlan(ctx, 7, today, plan))
			require.NoError(t, st.SavePlan(ctx, 7, today, plan))

			require.NoError(t, st.AddMealHistory(ctx, 7, today.AddDate(0, 0, -10), []string{"Old Stew"}))
			require.NoError(t, st.AddMealHistory(ctx, 7, today.AddDate(0, 0, -1), []string{"Chicken Salad", ""}))
			require.NoError(t, st.AddMealHistory(ctx, 7, today, plan.MealTitles()))
			require.NoError(t, st.AddMealHistory(ctx, 7, today, nil))

			recent, err := st.RecentMeals(ctx, 7, today.AddDate(0, 0, -7))
			require.NoError(t, err)
			require.Equal(t, []string{"Chicken Salad", "Greek Yogurt Bowl", "Salmon & Quinoa"}, recent)

			other, err := st.RecentMeals(ctx, 8, today.AddDate(0, 0, -7))
			require.NoError(t, err)
			require.Empty(t, other)
		})
	}
}

func TestDedupClaim(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

			ok, err := st.ClaimDedup(ctx, "update:1", now, now.Add(time.Hour))
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = st.ClaimDedup(ctx, "update:1", now.Add(time.Minute), now.Add(time.Hour))
			require.NoError(t, err)
			require.False(t, ok, "live record must not be claimed twice")

			ok, err = st.ClaimDedup(ctx, "update:1", now.Add(2*time.Hour), now.Add(3*time.Hour))
			require.NoError(t, err)
			require.True(t, ok, "expired record can be claimed again")

			require.NoError(t, st.ReleaseDedup(ctx, "update:1"))
			ok, err = st.ClaimDedup(ctx, "update:1", now.Add(2*time.Hour), now.Add(3*time.Hour))
			require.NoError(t, err)
			require.True(t, ok, "released record can be claimed again")
		})
	}
}

func TestDedupClaimIsExclusive(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			var (
				wg      sync.WaitGroup
				claimed atomic.Int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := st.ClaimDedup(ctx, "update:77", now, now.Add(time.Hour))
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					if ok {
						claimed.Add(1)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), claimed.Load())
		})
	}
}

func TestSavedPlanMemory(t *testing.T) {
	m := NewMemory()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SavePlan(context.Background(), 1, day, domain.DefaultPlan()))
	p, ok := m.SavedPlan(1, day.Add(5*time.Hour))
	require.True(t, ok)
	require.Equal(t, 1500, p.TotalCalories)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}
