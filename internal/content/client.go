// Package content generates meal plans, recipes and answers through an
// OpenAI-compatible chat completions API.
package content

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"biteiq/internal/domain"
	logx "biteiq/pkg/logx"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string // empty means the OpenAI API
	Timeout    time.Duration
	MaxRetries int
}

// Client implements domain.ContentProvider.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	log     logx.Logger
}

var _ domain.ContentProvider = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("content: api key must not be empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
		option.WithRequestTimeout(timeout),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		log:     log.With(logx.String("comp", "content"), logx.String("model", model)),
	}, nil
}

type completion struct {
	op          string
	messages    []openai.ChatCompletionMessageParamUnion
	maxTokens   int64
	temperature float64
}

func (c *Client) complete(ctx context.Context, req completion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    req.messages,
		MaxTokens:   openai.Int(req.maxTokens),
		Temperature: openai.Float(req.temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.log.Warn("completion rejected", logx.String("op", req.op), logx.Int("status", apiErr.StatusCode), logx.Err(err))
		}
		return "", &domain.GenerationError{Op: req.op, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Op: req.op, Err: errors.New("no choices in response")}
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", &domain.GenerationError{Op: req.op, Err: errors.New("empty completion")}
	}
	c.log.Debug("completion ok", logx.String("op", req.op), logx.Duration("dur", time.Since(start)), logx.Int64("tokens", resp.Usage.TotalTokens))
	return out, nil
}

func (c *Client) Plan(ctx context.Context, p domain.Profile, dayLabel string, avoid []string) (domain.Plan, error) {
	raw, err := c.complete(ctx, completion{
		op:          "plan",
		messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(planPrompt(p, dayLabel, avoid))},
		maxTokens:   600,
		temperature: 0.6,
	})
	if err != nil {
		return domain.Plan{}, err
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return domain.Plan{}, &domain.GenerationError{Op: "plan", Err: err}
	}
	return plan, nil
}

func (c *Client) Recipe(ctx context.Context, title string, p *domain.Profile) (string, error) {
	return c.complete(ctx, completion{
		op:          "recipe",
		messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(recipePrompt(title, p))},
		maxTokens:   350,
		temperature: 0.55,
	})
}

func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	return c.complete(ctx, completion{
		op: "answer",
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerSystemPrompt),
			openai.UserMessage(question),
		},
		maxTokens:   160,
		temperature: 0.5,
	})
}
