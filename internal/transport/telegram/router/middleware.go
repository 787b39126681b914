package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"biteiq/internal/domain"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

const apologyText = "😕 Sorry, something went wrong\\. Please try again in a moment\\."

// MWApology tells the recipient when a handler failed. Routing misses are
// not failures and stay silent.
func MWApology(log logx.Logger, out kit.Deliverer) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil || out == nil {
				return err
			}
			var re *domain.RoutingError
			if errors.As(err, &re) {
				return err
			}
			// The handler context may be the reason we failed.
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, serr := out.SendText(actx, req.Chat, apologyText, &kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2}); serr != nil {
				log.Debug("apology not delivered", logx.Int64("chat_id", req.Chat.ChatID), logx.Err(serr))
			}
			return err
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Event.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.String("cmd", req.Event.Command),
				logx.Duration("dur", d),
			}
			var re *domain.RoutingError
			switch {
			case errors.As(err, &re):
				// A routing miss ends here; callers never see it as a failure.
				logger.Info("event not routed", append(fields, logx.String("payload", re.Payload))...)
				return nil
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}
