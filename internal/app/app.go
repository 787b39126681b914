// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"biteiq/internal/billing"
	"biteiq/internal/bridge"
	"biteiq/internal/config"
	"biteiq/internal/content"
	"biteiq/internal/conversation"
	"biteiq/internal/eventbus"
	"biteiq/internal/ingress"
	"biteiq/internal/notifier"
	rtsup "biteiq/internal/runtime/supervisor"
	"biteiq/internal/secrets"
	"biteiq/internal/storage"
	"biteiq/internal/task/scheduler"
	"biteiq/internal/transport/telegram/adapter"
	"biteiq/internal/transport/telegram/router"
	logx "biteiq/pkg/logx"
)

const (
	jobPruneSessions = "conversation.prune"
	botName          = "BiteIQBot"
	Version          = "1.0.0"
)

type options struct {
	offline bool
}

type Option func(*options)

// WithOffline skips the getMe call when the bot client is built. Commands
// that never talk to Telegram use it.
func WithOffline() Option { return func(o *options) { o.offline = true } }

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	// raw is the config as read from disk, before secret references are
	// resolved. Reloads are diffed against it.
	raw *config.Config
	sup *rtsup.Supervisor

	closeOnce sync.Once
	closeErr  error

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	out      *adapter.Adapter
	bridge   *bridge.Bridge
	sessions *conversation.Machine
	router   *router.Router
	sched    *scheduler.Service
	notif    *notifier.Service
	ingress  *ingress.Service
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	raw := *cfg
	if secrets.NeedsResolution(cfg) {
		res, err := secrets.NewFromAWS(ctx, cfg.Secrets.Region, config.DurationOr(cfg.Secrets.Timeout, 10*time.Second))
		if err != nil {
			return nil, err
		}
		if err := res.ResolveConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	logs, root := logx.New(mapLogging(cfg))
	log := root.With(logx.String("comp", "app"))
	a := &App{cfgm: cfgm, cfg: cfg, raw: &raw, log: log, logs: logs, bus: eventbus.New()}

	if err := a.build(root, o); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(root logx.Logger, o options) error {
	cfg := a.cfg

	out, err := adapter.New(mapAdapter(cfg, o.offline), root)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.out = out
	a.logs.SetSender(out)

	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(sc, root); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	gen, err := content.New(mapContent(cfg), root)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	links, err := billing.New(cfg.Billing.CheckoutURL, cfg.Billing.PortalURL)
	if err != nil {
		return fmt.Errorf("billing: %w", err)
	}
	loc, err := loadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	a.bridge = bridge.New(mapBridge(cfg), root, a.bus)
	a.sessions = conversation.New(config.DurationOr(cfg.Conversation.IdleTTL, 30*time.Minute))

	a.router, err = router.New(router.Deps{
		Store:       a.store,
		Content:     gen,
		Out:         out,
		Billing:     links,
		Sessions:    a.sessions,
		Bus:         a.bus,
		Log:         root,
		Location:    loc,
		HistoryDays: cfg.Scheduler.HistoryDays,
		Timeout:     config.DurationOr(cfg.Conversation.RouteTimeout, 0),
	})
	if err != nil {
		return err
	}

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, scheduler.EnqueueFunc(a.enqueue), root)
	a.notif = notifier.New(mapNotifier(cfg, loc), notifier.Deps{
		Store:   a.store,
		Content: gen,
		Out:     out,
		Bridge:  a.bridge,
		Bus:     a.bus,
		Log:     root,
	})
	if cfg.Scheduler.Enabled {
		if err := a.notif.Register(a.sched); err != nil {
			return err
		}
	}
	pruneEvery := config.DurationOr(cfg.Conversation.PruneEvery, 10*time.Minute)
	if err := a.sched.AddInterval(jobPruneSessions, pruneEvery, 0, a.pruneSessions); err != nil {
		return err
	}

	ic := mapIngress(cfg)
	ic.BotName, ic.Version = botName, Version
	a.ingress = ingress.New(ic, ingress.Deps{
		Handler: a.router,
		Bridge:  a.bridge,
		Dedup:   a.store,
		Bus:     a.bus,
		Log:     root,
	})
	return nil
}

// enqueue hands fired schedules to the bridge so they run next to update
// handling.
func (a *App) enqueue(name string, timeout time.Duration, job scheduler.Job) error {
	var opts []bridge.SubmitOption
	if timeout > 0 {
		opts = append(opts, bridge.WithTimeout(timeout))
	}
	_, err := a.bridge.Submit("schedule."+name, bridge.Action(job), opts...)
	return err
}

func (a *App) pruneSessions(context.Context) error {
	if n := a.sessions.Prune(); n > 0 {
		a.log.Debug("sessions pruned", logx.Int("removed", n), logx.Int("left", a.sessions.Len()))
	}
	return nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings the bridge up before the listener so no update can arrive
// while submissions are refused.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.bridge.Start(runCtx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	mctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	if err := a.out.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
		a.log.Warn("menu commands not published", logx.Err(err))
	}
	cancel()

	if a.cfg.Telegram.RegisterWebhook {
		if err := a.RegisterWebhook(runCtx); err != nil {
			return err
		}
	}

	if err := a.ingress.Start(runCtx); err != nil {
		return fmt.Errorf("ingress: %w", err)
	}
	a.sched.Start(runCtx)

	a.watchEvents()
	a.watchConfig()

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("version", Version),
		logx.String("addr", a.ingress.Addr()),
		logx.Bool("scheduler", a.cfg.Scheduler.Enabled),
	)
	return nil
}

// RegisterWebhook points the platform at this instance.
func (a *App) RegisterWebhook(ctx context.Context) error {
	url := webhookURL(a.cfg)
	if url == "" {
		return errors.New("telegram.webhook_url is not set")
	}
	wctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.out.SetWebhook(wctx, url, a.cfg.Telegram.WebhookSecret); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

func (a *App) watchEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}

// watchConfig hot-applies the logging section. Other changes are reported
// and wait for a restart.
func (a *App) watchConfig() {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.raw
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				changed, restart, attrs := config.SummarizeChange(last, next)
				if len(changed) == 0 {
					a.log.Debug("config reload received, no changes")
					continue
				}
				a.logs.Apply(mapLogging(next))
				eventbus.Publish(a.bus, eventbus.ConfigLogReloaded, changed)
				if len(restart) > 0 {
					a.log.Warn("config changed; restart required for these sections", attrs...)
				} else {
					a.log.Info("config reloaded", attrs...)
				}
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

// Stop shuts down in dependency order: stop accepting updates, stop firing
// schedules, drain the bridge, then close storage.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	grace := config.DurationOr(a.cfg.Bridge.GracePeriod, 5*time.Second)

	a.step(ctx, "ingress", 3*time.Second, func(c context.Context) error { a.ingress.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "bridge", grace+2*time.Second, func(c context.Context) error { a.bridge.Stop(c); return nil })

	a.sup.Cancel()
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.close()
}

func (a *App) close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
		if a.logs != nil {
			errs = append(errs, a.logs.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the rest. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

// RunJob runs one notifier job immediately and waits for every recipient.
// Only the bridge is started; the listener and the schedule stay down.
func (a *App) RunJob(ctx context.Context, job string) (notifier.Report, error) {
	if err := a.bridge.Start(ctx); err != nil {
		return notifier.Report{}, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), config.DurationOr(a.cfg.Bridge.GracePeriod, 5*time.Second)+time.Second)
		a.bridge.Stop(sctx)
		cancel()
		_ = a.close()
	}()

	run, err := a.notif.Run(ctx, job)
	if err != nil {
		return notifier.Report{}, err
	}
	select {
	case <-run.Done():
		return run.Report(), nil
	case <-ctx.Done():
		return run.Report(), ctx.Err()
	}
}

// Jobs lists the job names RunJob accepts.
func (a *App) Jobs() []string { return a.notif.Jobs() }

// Grant marks a recipient subscribed until the given time (zero means no
// expiry), creating the record if needed.
func (a *App) Grant(ctx context.Context, id int64, until time.Time) error {
	defer func() { _ = a.close() }()
	if err := a.store.EnsureRecipient(ctx, id, "", ""); err != nil {
		return err
	}
	return a.store.SetSubscription(ctx, id, true, until)
}

// Revoke ends a recipient's subscription.
func (a *App) Revoke(ctx context.Context, id int64) error {
	defer func() { _ = a.close() }()
	return a.store.SetSubscription(ctx, id, false, time.Time{})
}

// Close releases resources of an app that was never started.
func (a *App) Close() error { return a.close() }
