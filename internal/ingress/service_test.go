package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"biteiq/internal/bridge"
	"biteiq/internal/eventbus"
	"biteiq/internal/storage"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	events []kit.InboundEvent
	seen   chan struct{}
}

func newRecorder() *recorder { return &recorder{seen: make(chan struct{}, 64)} }

func (r *recorder) Handle(_ context.Context, ev kit.InboundEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) wait(t *testing.T) kit.InboundEvent {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not called")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func startedBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	b := bridge.New(bridge.Config{}, logx.Nop(), nil)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.Stop(ctx)
	})
	return b
}

const textUpdate = `{"update_id":1001,"message":{"message_id":5,"date":1700000000,` +
	`"from":{"id":42,"is_bot":false,"first_name":"Ana","username":"ana_k"},` +
	`"chat":{"id":42,"type":"private"},"text":"/start"}}`

func post(t *testing.T, h http.Handler, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestWebhookSubmitsValidUpdate(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{}, Deps{Handler: rec, Bridge: startedBridge(t)})

	rr := post(t, svc.Handler(), textUpdate, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeBody(t, rr)["ok"])

	ev := rec.wait(t)
	require.Equal(t, kit.EventCommand, ev.Kind)
	require.Equal(t, "start", ev.Command)
	require.Equal(t, int64(42), ev.RecipientID)
	require.Equal(t, int64(1001), ev.UpdateID)
}

func TestWebhookRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "{nope"},
		{"message without sender", `{"update_id":3,"message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"hi"}}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bus := eventbus.New()
			events, unsub := bus.Subscribe(4)
			defer unsub()
			rec := newRecorder()
			b := startedBridge(t)
			svc := New(Config{}, Deps{Handler: rec, Bridge: b, Bus: bus})

			rr := post(t, svc.Handler(), tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Equal(t, false, decodeBody(t, rr)["ok"])
			require.Zero(t, b.Pending())
			require.Zero(t, rec.count())

			select {
			case ev := <-events:
				require.Equal(t, eventbus.IngressRejected, ev.Type)
			case <-time.After(time.Second):
				t.Fatalf("no rejection event")
			}
		})
	}
}

func TestWebhookIgnoresUnsupported(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{}, Deps{Handler: rec, Bridge: startedBridge(t)})

	for _, body := range []string{
		`{"update_id":7}`,
		`{"update_id":8,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"x"}}`,
	} {
		rr := post(t, svc.Handler(), body, nil)
		require.Equal(t, http.StatusOK, rr.Code, body)
	}
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, rec.count())
}

func TestWebhookSecret(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{Secret: "s3cret"}, Deps{Handler: rec, Bridge: startedBridge(t)})
	h := svc.Handler()

	require.Equal(t, http.StatusUnauthorized, post(t, h, textUpdate, nil).Code)
	require.Equal(t, http.StatusUnauthorized, post(t, h, textUpdate, map[string]string{secretHeader: "wrong"}).Code)
	require.Zero(t, rec.count())

	require.Equal(t, http.StatusOK, post(t, h, textUpdate, map[string]string{secretHeader: "s3cret"}).Code)
	rec.wait(t)
}

func TestWebhookBridgeNotReady(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	b := bridge.New(bridge.Config{}, logx.Nop(), nil)
	svc := New(Config{}, Deps{Handler: rec, Bridge: b})

	rr := post(t, svc.Handler(), textUpdate, nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Zero(t, rec.count())
}

func TestWebhookBodyLimit(t *testing.T) {
	t.Parallel()

	svc := New(Config{MaxBodyBytes: 64}, Deps{Handler: newRecorder(), Bridge: startedBridge(t)})
	rr := post(t, svc.Handler(), textUpdate, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestWebhookDedup(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{DedupWindow: time.Hour}, Deps{
		Handler: rec,
		Bridge:  startedBridge(t),
		Dedup:   storage.NewMemory(),
	})
	h := svc.Handler()

	require.Equal(t, http.StatusOK, post(t, h, textUpdate, nil).Code)
	rec.wait(t)
	rr := post(t, h, textUpdate, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeBody(t, rr)["duplicate"])
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestWebhookDedupConcurrentRedeliveries(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{DedupWindow: time.Hour}, Deps{
		Handler: rec,
		Bridge:  startedBridge(t),
		Dedup:   storage.NewMemory(),
	})
	h := svc.Handler()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textUpdate))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Errorf("status = %d", rr.Code)
				return
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if body["duplicate"] == true {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	rec.wait(t)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 19, duplicates)
	require.Equal(t, 1, rec.count())
}

func TestWebhookDedupReleasedWhenNotAccepted(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	b := bridge.New(bridge.Config{}, logx.Nop(), nil)
	svc := New(Config{DedupWindow: time.Hour}, Deps{Handler: rec, Bridge: b, Dedup: storage.NewMemory()})
	h := svc.Handler()

	require.Equal(t, http.StatusServiceUnavailable, post(t, h, textUpdate, nil).Code)

	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.Stop(ctx)
	})
	rr := post(t, h, textUpdate, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, decodeBody(t, rr)["duplicate"], "redelivery after a refusal is handled")
	rec.wait(t)
	require.Equal(t, 1, rec.count())
}

func TestWebhookWithoutDedupHandlesRepeats(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	svc := New(Config{}, Deps{Handler: rec, Bridge: startedBridge(t), Dedup: storage.NewMemory()})
	h := svc.Handler()
	post(t, h, textUpdate, nil)
	post(t, h, textUpdate, nil)
	rec.wait(t)
	rec.wait(t)
	require.Equal(t, 2, rec.count())
}

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()

	svc := New(Config{}, Deps{})
	h := svc.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "healthy", decodeBody(t, rr)["status"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	body := decodeBody(t, rr)
	require.Equal(t, "online", body["status"])
	require.Equal(t, "BiteIQBot", body["bot"])
	require.Equal(t, "1.0.0", body["version"])
	require.Len(t, body, 3, "root body is constant")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPprofNeedsToken(t *testing.T) {
	t.Parallel()

	open := New(Config{Pprof: PprofConfig{Enabled: true}}, Deps{}).Handler()
	rr := httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	guarded := New(Config{Pprof: PprofConfig{Enabled: true, Token: "tok"}}, Deps{}).Handler()
	rr = httptest.NewRecorder()
	guarded.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	guarded.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	svc := New(Config{Addr: "127.0.0.1:0"}, Deps{})
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Start(context.Background()))
	addr := svc.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(b), "healthy")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)
	require.Empty(t, svc.Addr())

	_, err = http.Get("http://" + addr + "/health")
	require.Error(t, err)
}
