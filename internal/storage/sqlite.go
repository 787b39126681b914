package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"biteiq/internal/domain"
	logx "biteiq/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

var recipientColumns = []string{
	"telegram_id",
	"COALESCE(username, '')",
	"COALESCE(first_name, '')",
	"COALESCE(name, '')",
	"COALESCE(age, 0)",
	"COALESCE(gender, '')",
	"COALESCE(height_cm, 0)",
	"COALESCE(weight_kg, 0)",
	"COALESCE(activity, '')",
	"COALESCE(diet, '')",
	"COALESCE(goal_kg, 0)",
	"reminders",
	"subscription_status",
	"subscription_until",
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log.With(logx.String("comp", "storage")), now: time.Now, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	st.log.Info("storage opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqliteStore) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqliteStore) EnsureRecipient(ctx context.Context, id int64, username, firstName string) error {
	now := s.now().UnixMilli()
	_, err := s.exec(ctx, sq.Insert("recipients").
		Columns("telegram_id", "username", "first_name", "created_at", "last_active").
		Values(id, nullStr(username), nullStr(firstName), now, now).
		Suffix(`ON CONFLICT(telegram_id) DO UPDATE SET
			username = COALESCE(excluded.username, recipients.username),
			first_name = COALESCE(excluded.first_name, recipients.first_name),
			last_active = excluded.last_active`))
	return err
}

func (s *sqliteStore) Recipient(ctx context.Context, id int64) (domain.Recipient, error) {
	rs, err := s.listRecipients(ctx, sq.Eq{"telegram_id": id})
	if err != nil {
		return domain.Recipient{}, err
	}
	if len(rs) == 0 {
		return domain.Recipient{}, fmt.Errorf("recipient %d: %w", id, domain.ErrNotFound)
	}
	return rs[0], nil
}

func (s *sqliteStore) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	return s.listRecipients(ctx, nil)
}

func (s *sqliteStore) ListReminderRecipients(ctx context.Context) ([]domain.Recipient, error) {
	return s.listRecipients(ctx, sq.Eq{"reminders": 1})
}

func (s *sqliteStore) listRecipients(ctx context.Context, where sq.Sqlizer) ([]domain.Recipient, error) {
	q := sq.Select(recipientColumns...).From("recipients").OrderBy("telegram_id")
	if where != nil {
		q = q.Where(where)
	}
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now()
	var out []domain.Recipient
	for rows.Next() {
		var (
			r         domain.Recipient
			reminders int
			status    string
			untilMS   int64
		)
		if err := rows.Scan(
			&r.ID, &r.Username, &r.FirstName,
			&r.Profile.Name, &r.Profile.Age, &r.Profile.Gender,
			&r.Profile.HeightCM, &r.Profile.WeightKG,
			&r.Profile.Activity, &r.Profile.Diet, &r.Profile.GoalKG,
			&reminders, &status, &untilMS,
		); err != nil {
			return nil, err
		}
		r.RemindersEnabled = reminders != 0
		r.SubscriptionActive = subscriptionActive(status, untilMS, now)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertProfile(ctx context.Context, id int64, p domain.Profile) error {
	now := s.now().UnixMilli()
	_, err := s.exec(ctx, sq.Insert("recipients").
		Columns("telegram_id", "name", "age", "gender", "height_cm", "weight_kg", "activity", "diet", "goal_kg", "created_at", "last_active").
		Values(id, p.Name, p.Age, p.Gender, p.HeightCM, p.WeightKG, p.Activity, p.Diet, p.GoalKG, now, now).
		Suffix(`ON CONFLICT(telegram_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			height_cm = excluded.height_cm,
			weight_kg = excluded.weight_kg,
			activity = excluded.activity,
			diet = excluded.diet,
			goal_kg = excluded.goal_kg,
			last_active = excluded.last_active`))
	return err
}

func (s *sqliteStore) SetReminders(ctx context.Context, id int64, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.updateRecipient(ctx, id, sq.Update("recipients").Set("reminders", v))
}

func (s *sqliteStore) SetSubscription(ctx context.Context, id int64, active bool, until time.Time) error {
	status := "inactive"
	if active {
		status = "active"
	}
	var untilMS int64
	if !until.IsZero() {
		untilMS = until.UnixMilli()
	}
	return s.updateRecipient(ctx, id, sq.Update("recipients").
		Set("subscription_status", status).
		Set("subscription_until", untilMS))
}

func (s *sqliteStore) updateRecipient(ctx context.Context, id int64, b sq.UpdateBuilder) error {
	res, err := s.exec(ctx, b.Where(sq.Eq{"telegram_id": id}))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recipient %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) SubscriptionActive(ctx context.Context, id int64) (bool, error) {
	rows, err := s.query(ctx, sq.Select("subscription_status", "subscription_until").
		From("recipients").
		Where(sq.Eq{"telegram_id": id}))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	var (
		status  string
		untilMS int64
	)
	if err := rows.Scan(&status, &untilMS); err != nil {
		return false, err
	}
	return subscriptionActive(status, untilMS, s.now()), nil
}

func (s *sqliteStore) SavePlan(ctx context.Context, id int64, day time.Time, p domain.Plan) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, sq.Insert("plans").
		Columns("telegram_id", "plan_date", "plan_json", "created_at").
		Values(id, dateKey(day), string(b), s.now().UnixMilli()).
		Suffix("ON CONFLICT(telegram_id, plan_date) DO UPDATE SET plan_json = excluded.plan_json, created_at = excluded.created_at"))
	return err
}

func (s *sqliteStore) AddMealHistory(ctx context.Context, id int64, day time.Time, titles []string) error {
	ins := sq.Insert("meal_history").Columns("telegram_id", "meal_title", "seen_on")
	n := 0
	for _, t := range titles {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		ins = ins.Values(id, t, dateKey(day))
		n++
	}
	if n == 0 {
		return nil
	}
	_, err := s.exec(ctx, ins)
	return err
}

func (s *sqliteStore) RecentMeals(ctx context.Context, id int64, since time.Time) ([]string, error) {
	rows, err := s.query(ctx, sq.Select("DISTINCT meal_title").From("meal_history").
		Where(sq.Eq{"telegram_id": id}).
		Where(sq.GtOrEq{"seen_on": dateKey(since)}).
		OrderBy("meal_title"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClaimDedup(ctx context.Context, key string, now, until time.Time) (bool, error) {
	if key == "" {
		return true, nil
	}
	res, err := s.exec(ctx, sq.Insert("dedup").
		Columns("key", "until").
		Values(key, until.UnixMilli()).
		Suffix("ON CONFLICT(key) DO UPDATE SET until = excluded.until WHERE dedup.until <= ?", now.UnixMilli()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return n > 0, nil
}

func (s *sqliteStore) ReleaseDedup(ctx context.Context, key string) error {
	_, err := s.exec(ctx, sq.Delete("dedup").Where(sq.Eq{"key": key}))
	return err
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.exec(ctx, sq.Delete("dedup").Where(sq.Lt{"until": s.now().UnixMilli()}))
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
