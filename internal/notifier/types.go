package notifier

import (
	"errors"
	"sync"
	"time"
)

var ErrRunInProgress = errors.New("run already in progress")

const JobDailyPlan = "daily_plan"

// ReminderJob names the job for a configured reminder.
func ReminderJob(name string) string { return "reminder:" + name }

type Reminder struct {
	Name string
	At   string // HH:MM
	Kind string // breakfast, hydration, lunch, dinner; anything else is generic
}

func DefaultReminders() []Reminder {
	return []Reminder{
		{Name: "breakfast", At: "08:00", Kind: "breakfast"},
		{Name: "hydration_am", At: "10:00", Kind: "hydration"},
		{Name: "lunch", At: "13:00", Kind: "lunch"},
		{Name: "hydration_pm", At: "15:00", Kind: "hydration"},
		{Name: "dinner", At: "18:00", Kind: "dinner"},
	}
}

type Config struct {
	DailyPlanAt      string
	Reminders        []Reminder
	RecipientTimeout time.Duration
	HistoryDays      int
	Location         *time.Location
	// MaxPending caps how many of one run's recipients sit in the bridge at
	// once, leaving queue room for webhook traffic.
	MaxPending int
}

func (c Config) withDefaults() Config {
	if c.DailyPlanAt == "" {
		c.DailyPlanAt = "06:00"
	}
	if c.Reminders == nil {
		c.Reminders = DefaultReminders()
	}
	if c.RecipientTimeout <= 0 {
		c.RecipientTimeout = 90 * time.Second
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = 7
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 32
	}
	return c
}

type JobState int

const (
	Idle JobState = iota
	Running
)

func (s JobState) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

type Outcome int

const (
	Delivered Outcome = iota
	Skipped
	Failed
)

// Report summarizes a finished (or in-progress) run.
type Report struct {
	RunID      string           `json:"run_id"`
	Job        string           `json:"job"`
	Recipients int              `json:"recipients"`
	Delivered  int              `json:"delivered"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Duration   time.Duration    `json:"duration"`
	Failures   map[int64]string `json:"failures,omitempty"`
}

// Run is one execution of a job.
type Run struct {
	ID      string
	Job     string
	Started time.Time

	mu       sync.Mutex
	report   Report
	pending  int
	finished bool
	done     chan struct{}
	onFinish func(*Run)
}

func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.report
	out.Failures = make(map[int64]string, len(r.report.Failures))
	for k, v := range r.report.Failures {
		out.Failures[k] = v
	}
	return out
}

// record stores one recipient's outcome. The last outcome finishes the run.
func (r *Run) record(id int64, o Outcome, err error) {
	r.mu.Lock()
	switch o {
	case Delivered:
		r.report.Delivered++
	case Skipped:
		r.report.Skipped++
	case Failed:
		r.report.Failed++
		if err != nil {
			r.report.Failures[id] = err.Error()
		}
	}
	r.mu.Unlock()
	r.release()
}

func (r *Run) release() {
	r.mu.Lock()
	r.pending--
	if r.pending > 0 || r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.report.Duration = time.Since(r.Started)
	r.mu.Unlock()

	if r.onFinish != nil {
		r.onFinish(r)
	}
	close(r.done)
}
