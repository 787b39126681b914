package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"biteiq/internal/bridge"
	"biteiq/internal/domain"
	"biteiq/internal/eventbus"
	"biteiq/internal/render"
	"biteiq/internal/task/scheduler"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

// Submitter is the part of the bridge the notifier uses.
type Submitter interface {
	Submit(name string, action bridge.Action, opts ...bridge.SubmitOption) (*bridge.Submission, error)
}

type Deps struct {
	Store   domain.RecordStore
	Content domain.ContentProvider
	Out     kit.Deliverer
	Bridge  Submitter
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

type Service struct {
	cfg Config
	d   Deps
	log logx.Logger

	mu      sync.Mutex
	running map[string]*Run
}

func New(cfg Config, d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		d:       d,
		log:     d.Log.With(logx.String("comp", "notifier")),
		running: map[string]*Run{},
	}
}

// Register adds the daily plan and every reminder to sch. Fired jobs only
// start a run; they never wait for its deliveries.
func (s *Service) Register(sch *scheduler.Service) error {
	if err := sch.AddDaily(JobDailyPlan, s.cfg.DailyPlanAt, 0, s.trigger(JobDailyPlan)); err != nil {
		return fmt.Errorf("register %s: %w", JobDailyPlan, err)
	}
	for _, rm := range s.cfg.Reminders {
		job := ReminderJob(rm.Name)
		if err := sch.AddDaily(job, rm.At, 0, s.trigger(job)); err != nil {
			return fmt.Errorf("register %s: %w", job, err)
		}
	}
	return nil
}

func (s *Service) trigger(job string) scheduler.Job {
	return func(ctx context.Context) error {
		_, err := s.Run(ctx, job)
		if errors.Is(err, ErrRunInProgress) {
			return nil
		}
		return err
	}
}

// Jobs lists every job name this service can run.
func (s *Service) Jobs() []string {
	out := []string{JobDailyPlan}
	for _, rm := range s.cfg.Reminders {
		out = append(out, ReminderJob(rm.Name))
	}
	return out
}

// Run starts job by name.
func (s *Service) Run(ctx context.Context, job string) (*Run, error) {
	if job == JobDailyPlan {
		return s.RunDailyNotification(ctx)
	}
	for _, rm := range s.cfg.Reminders {
		if ReminderJob(rm.Name) == job {
			return s.RunReminder(ctx, rm.Name)
		}
	}
	return nil, fmt.Errorf("unknown job %q", job)
}

func (s *Service) State(job string) JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[job]; ok {
		return Running
	}
	return Idle
}

// RunDailyNotification sends today's plan to every subscribed recipient with
// a profile.
func (s *Service) RunDailyNotification(ctx context.Context) (*Run, error) {
	return s.start(ctx, JobDailyPlan, s.d.Store.ListRecipients,
		func(r domain.Recipient) bool { return r.SubscriptionActive && r.Profile.Complete() },
		s.deliverPlan)
}

// RunReminder sends the named reminder to subscribed recipients who opted in.
func (s *Service) RunReminder(ctx context.Context, name string) (*Run, error) {
	var rm *Reminder
	for i := range s.cfg.Reminders {
		if s.cfg.Reminders[i].Name == name {
			rm = &s.cfg.Reminders[i]
			break
		}
	}
	if rm == nil {
		return nil, fmt.Errorf("unknown reminder %q", name)
	}
	kind := rm.Kind
	return s.start(ctx, ReminderJob(name), s.d.Store.ListReminderRecipients,
		func(r domain.Recipient) bool { return r.SubscriptionActive },
		func(ctx context.Context, r domain.Recipient) error {
			return s.send(ctx, r.ID, render.Reminder(kind, r.DisplayName()))
		})
}

type recipientAction func(ctx context.Context, r domain.Recipient) error

func (s *Service) start(
	ctx context.Context,
	job string,
	list func(context.Context) ([]domain.Recipient, error),
	eligible func(domain.Recipient) bool,
	act recipientAction,
) (*Run, error) {
	// pending holds one extra count until every recipient has been submitted.
	run := &Run{
		ID:       uuid.NewString(),
		Job:      job,
		Started:  s.d.Now(),
		done:     make(chan struct{}),
		pending:  1,
		onFinish: s.finish,
	}
	run.report = Report{RunID: run.ID, Job: job, Failures: map[int64]string{}}

	s.mu.Lock()
	if cur, ok := s.running[job]; ok {
		s.mu.Unlock()
		s.log.Info("run skipped, previous run still running",
			logx.String("job", job), logx.String("running_id", cur.ID))
		eventbus.Publish(s.d.Bus, eventbus.NotifierSkipped, map[string]any{"job": job, "running_id": cur.ID})
		return nil, ErrRunInProgress
	}
	s.running[job] = run
	s.mu.Unlock()

	recipients, err := list(ctx)
	if err != nil {
		s.mu.Lock()
		delete(s.running, job)
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: list recipients: %w", job, err)
	}

	log := s.log.With(logx.String("job", job), logx.String("run_id", run.ID))
	log.Info("run started", logx.Int("recipients", len(recipients)))

	run.mu.Lock()
	run.report.Recipients = len(recipients)
	run.pending += len(recipients)
	run.mu.Unlock()

	go s.feed(run, log, recipients, eligible, act)
	return run, nil
}

// feed submits a run's recipients with at most MaxPending outstanding.
// A full bridge queue is waited out; any other submit error means the bridge
// is not running and fails the remaining recipients.
func (s *Service) feed(run *Run, log logx.Logger, recipients []domain.Recipient, eligible func(domain.Recipient) bool, act recipientAction) {
	defer run.release()

	slots := make(chan struct{}, s.cfg.MaxPending)
	var abort error
	for _, rec := range recipients {
		if !eligible(rec) {
			run.record(rec.ID, Skipped, nil)
			continue
		}
		if abort != nil {
			run.record(rec.ID, Failed, abort)
			continue
		}

		slots <- struct{}{}
		rec := rec
		err := s.submit(run.Job, func(ctx context.Context) error { return act(ctx, rec) },
			bridge.WithKey(bridge.RecipientKey(rec.ID)),
			bridge.WithTimeout(s.cfg.RecipientTimeout),
			bridge.WithOnDone(func(res bridge.Result) {
				<-slots
				if res.Err != nil {
					log.Warn("recipient failed", logx.Int64("recipient_id", rec.ID), logx.Bool("panicked", res.Panicked), logx.Err(res.Err))
					run.record(rec.ID, Failed, res.Err)
					return
				}
				run.record(rec.ID, Delivered, nil)
			}),
		)
		if err != nil {
			<-slots
			log.Warn("recipient not submitted", logx.Int64("recipient_id", rec.ID), logx.Err(err))
			run.record(rec.ID, Failed, err)
			if !errors.Is(err, bridge.ErrQueueFull) {
				abort = err
			}
		}
	}
}

// submit retries while the bridge queue is full, for up to RecipientTimeout.
func (s *Service) submit(name string, action bridge.Action, opts ...bridge.SubmitOption) error {
	const (
		backoffMin = 20 * time.Millisecond
		backoffMax = time.Second
	)
	deadline := time.Now().Add(s.cfg.RecipientTimeout)
	backoff := backoffMin
	for {
		_, err := s.d.Bridge.Submit(name, action, opts...)
		if !errors.Is(err, bridge.ErrQueueFull) || time.Now().Add(backoff).After(deadline) {
			return err
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, backoffMax)
	}
}

func (s *Service) finish(run *Run) {
	s.mu.Lock()
	if s.running[run.Job] == run {
		delete(s.running, run.Job)
	}
	s.mu.Unlock()

	rep := run.Report()
	s.log.Info("run finished",
		logx.String("job", rep.Job),
		logx.String("run_id", rep.RunID),
		logx.Int("recipients", rep.Recipients),
		logx.Int("delivered", rep.Delivered),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Duration),
	)
	eventbus.Publish(s.d.Bus, eventbus.NotifierFinished, rep)
}

func (s *Service) today() time.Time { return s.d.Now().In(s.cfg.Location) }

// deliverPlan generates, stores and sends one recipient's daily plan. There
// is no fallback plan here: a failed generation fails the recipient.
func (s *Service) deliverPlan(ctx context.Context, r domain.Recipient) error {
	today := s.today()
	recent, err := s.d.Store.RecentMeals(ctx, r.ID, today.AddDate(0, 0, -s.cfg.HistoryDays))
	if err != nil {
		s.log.Warn("recent meals unavailable", logx.Int64("recipient_id", r.ID), logx.Err(err))
		recent = nil
	}
	plan, err := s.d.Content.Plan(ctx, r.Profile, domain.DayToday, recent)
	if err != nil {
		return err
	}
	if err := s.d.Store.SavePlan(ctx, r.ID, today, plan); err != nil {
		s.log.Warn("plan not saved", logx.Int64("recipient_id", r.ID), logx.Err(err))
	}
	if err := s.d.Store.AddMealHistory(ctx, r.ID, today, plan.MealTitles()); err != nil {
		s.log.Warn("meal history not saved", logx.Int64("recipient_id", r.ID), logx.Err(err))
	}
	return s.send(ctx, r.ID, render.Plan(render.TitleDaily, r.DisplayName(), plan))
}

func (s *Service) send(ctx context.Context, id int64, text string) error {
	_, err := s.d.Out.SendText(ctx, kit.ChatTarget{ChatID: id}, text, &kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2})
	return err
}
