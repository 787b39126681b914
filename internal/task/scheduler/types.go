package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "biteiq/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Madrid"; empty means UTC
}

type Job func(ctx context.Context) error

// Enqueuer receives fired jobs. It must not run the job on the calling
// goroutine for long.
type Enqueuer interface {
	Enqueue(name string, timeout time.Duration, job Job) error
}

// EnqueueFunc adapts a function to Enqueuer.
type EnqueueFunc func(name string, timeout time.Duration, job Job) error

func (f EnqueueFunc) Enqueue(name string, timeout time.Duration, job Job) error {
	return f(name, timeout, job)
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for @every schedules
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	out Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// Enqueue error throttling, keyed by schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
