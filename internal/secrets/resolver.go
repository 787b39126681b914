// Package secrets resolves "ssm:/path" config values through AWS SSM
// Parameter Store. Plain values pass through untouched.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"biteiq/internal/config"
)

const Prefix = "ssm:"

// ssmAPI is the part of *ssm.Client the resolver needs.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Resolver struct {
	api     ssmAPI
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string
}

func New(api ssmAPI, timeout time.Duration) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{api: api, timeout: timeout, cache: map[string]string{}}, nil
}

// NewFromAWS builds a resolver on the default AWS credential chain. An empty
// region defers to the environment.
func NewFromAWS(ctx context.Context, region string, timeout time.Duration) (*Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r := strings.TrimSpace(region); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return New(ssm.NewFromConfig(cfg), timeout)
}

// IsRef reports whether v names a parameter instead of holding a value.
func IsRef(v string) bool {
	return strings.HasPrefix(strings.TrimSpace(v), Prefix)
}

// Resolve returns v unchanged unless it is a reference, in which case the
// decrypted parameter value is fetched once and cached.
func (r *Resolver) Resolve(ctx context.Context, v string) (string, error) {
	if !IsRef(v) {
		return v, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), Prefix))
	if name == "" {
		return "", errors.New("secrets: parameter name is required")
	}

	r.mu.Lock()
	cached, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	withDecryption := true
	out, err := r.api.GetParameter(cctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q has no value", name)
	}
	val := strings.TrimSpace(*out.Parameter.Value)

	r.mu.Lock()
	r.cache[name] = val
	r.mu.Unlock()
	return val, nil
}

// secretFields lists every config value that may hold a reference.
func secretFields(cfg *config.Config) map[string]*string {
	return map[string]*string{
		"telegram.token":          &cfg.Telegram.Token,
		"telegram.webhook_secret": &cfg.Telegram.WebhookSecret,
		"content.api_key":         &cfg.Content.APIKey,
		"http.pprof.token":        &cfg.HTTP.Pprof.Token,
	}
}

// NeedsResolution reports whether any secret field in cfg is a reference.
func NeedsResolution(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	for _, p := range secretFields(cfg) {
		if IsRef(*p) {
			return true
		}
	}
	return false
}

// ResolveConfig replaces every reference in cfg with its value, in place.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	var errs []error
	for path, p := range secretFields(cfg) {
		v, err := r.Resolve(ctx, *p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		*p = v
	}
	return errors.Join(errs...)
}
