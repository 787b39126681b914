package ingress

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"biteiq/internal/bridge"
	"biteiq/internal/domain"
	"biteiq/internal/eventbus"
	kit "biteiq/internal/transport"
	"biteiq/internal/transport/telegram/adapter"
	logx "biteiq/pkg/logx"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// handleWebhook acknowledges an update only after it was accepted by the
// bridge. Malformed updates are never submitted.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			s.reject(w, http.StatusUnauthorized, "bad secret token", nil)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.reject(w, http.StatusRequestEntityTooLarge, "body too large", err)
			return
		}
		s.reject(w, http.StatusBadRequest, "unreadable body", err)
		return
	}

	ev, err := adapter.DecodeUpdate(body)
	if errors.Is(err, adapter.ErrUnsupported) {
		s.log.Debug("update ignored", logx.String("reason", err.Error()))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if err != nil {
		reason := "malformed update"
		var ie *domain.IngressError
		if errors.As(err, &ie) {
			reason = ie.Reason
		}
		s.reject(w, http.StatusBadRequest, reason, err)
		return
	}

	dedupKey := ""
	if s.cfg.DedupWindow > 0 && s.d.Dedup != nil && ev.UpdateID > 0 {
		key := "update:" + strconv.FormatInt(ev.UpdateID, 10)
		now := s.d.Now()
		claimed, err := s.d.Dedup.ClaimDedup(r.Context(), key, now, now.Add(s.cfg.DedupWindow))
		switch {
		case err != nil:
			s.log.Warn("dedup claim failed", logx.String("key", key), logx.Err(err))
		case !claimed:
			s.log.Debug("duplicate update acknowledged", logx.Int64("update_id", ev.UpdateID))
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
			return
		default:
			dedupKey = key
		}
	}

	if err := s.submit(ev); err != nil {
		// Let the platform's retry through.
		if dedupKey != "" {
			if rerr := s.d.Dedup.ReleaseDedup(context.WithoutCancel(r.Context()), dedupKey); rerr != nil {
				s.log.Warn("dedup release failed", logx.String("key", dedupKey), logx.Err(rerr))
			}
		}
		status := http.StatusServiceUnavailable
		if !retryable(err) {
			status = http.StatusInternalServerError
		}
		s.log.Warn("update not accepted",
			logx.Int64("update_id", ev.UpdateID),
			logx.Int64("recipient_id", ev.RecipientID),
			logx.Err(err),
		)
		writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) submit(ev kit.InboundEvent) error {
	if s.d.Bridge == nil || s.d.Handler == nil {
		return bridge.ErrNotReady
	}
	h := s.d.Handler
	_, err := s.d.Bridge.Submit("update."+string(ev.Kind), func(ctx context.Context) error {
		return h.Handle(ctx, ev)
	}, bridge.WithKey(bridge.RecipientKey(ev.RecipientID)))
	return err
}

func retryable(err error) bool {
	return errors.Is(err, bridge.ErrNotReady) ||
		errors.Is(err, bridge.ErrQueueFull) ||
		errors.Is(err, bridge.ErrStopping) ||
		errors.Is(err, bridge.ErrStopped)
}

func (s *Service) reject(w http.ResponseWriter, status int, reason string, err error) {
	s.log.Warn("webhook rejected", logx.Int("status", status), logx.String("reason", reason), logx.Err(err))
	eventbus.Publish(s.d.Bus, eventbus.IngressRejected, map[string]any{"status": status, "reason": reason})
	writeJSON(w, status, map[string]any{"ok": false, "error": reason})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Service) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"bot":     s.cfg.BotName,
		"version": s.cfg.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
