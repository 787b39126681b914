package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrNotReady is returned by Submit before Start.
	ErrNotReady = errors.New("bridge: not ready")

	ErrStopping  = errors.New("bridge: stopping")
	ErrStopped   = errors.New("bridge: stopped")
	ErrQueueFull = errors.New("bridge: queue full")

	// ErrDropped is the result of a submission discarded during shutdown.
	ErrDropped = errors.New("bridge: dropped on shutdown")
)

type Config struct {
	QueueSize   int
	MaxInFlight int
	// Timeout bounds every action unless the submission sets its own.
	Timeout time.Duration
	// GracePeriod is how long Stop lets in-flight actions finish before
	// their contexts are canceled.
	GracePeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 16
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	return c
}

// Action is a unit of work run on the bridge's execution context.
type Action func(ctx context.Context) error

// Result describes how one submission ended.
type Result struct {
	ID       string
	Name     string
	Key      string
	Queued   time.Duration
	Duration time.Duration
	Err      error
	Panicked bool
}

// Submission is a queued action. Done is closed once it ran or was dropped.
type Submission struct {
	ID   string
	Name string
	Key  string

	enqueuedAt time.Time
	timeout    time.Duration
	action     Action
	onDone     func(Result)

	once   sync.Once
	done   chan struct{}
	result Result
}

func (s *Submission) Done() <-chan struct{} { return s.done }

// Result is valid after Done is closed.
func (s *Submission) Result() Result {
	<-s.done
	return s.result
}

type SubmitOption func(*Submission)

// WithKey serializes the submission with every other submission sharing key.
func WithKey(key string) SubmitOption {
	return func(s *Submission) { s.Key = key }
}

func WithTimeout(d time.Duration) SubmitOption {
	return func(s *Submission) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithOnDone registers a completion callback. It runs on the worker
// goroutine after the action and must not block.
func WithOnDone(fn func(Result)) SubmitOption {
	return func(s *Submission) { s.onDone = fn }
}

// RecipientKey is the ordering key for work that belongs to one chat user.
func RecipientKey(id int64) string {
	return "recipient:" + strconv.FormatInt(id, 10)
}
