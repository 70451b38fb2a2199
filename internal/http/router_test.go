package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-comment-moderation/internal/config"
	"github.com/tbourn/go-comment-moderation/internal/http/middleware"
	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/repo"
	"github.com/tbourn/go-comment-moderation/internal/services"
)

type testApp struct {
	r     *gin.Engine
	store *repo.MemoryStore
	mod   *services.ModerationService
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		LegacyRoutes:   true,
		RateRPS:        100,
		RateBurst:      10,
		Identity:       config.IdentityConfig{Secret: "test", Mode: config.FingerprintAddress, IPv6PrefixBits: 64},
		Moderation:     config.ModerationConfig{MaxTextRunes: 20, MaxNameRunes: 10},
		Telegram:       config.TelegramConfig{WebhookSecret: "hook"},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
	}
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repo.NewMemoryStore()
	texts := notify.Catalog("en")
	sub := &services.SubmissionService{
		Store:          store,
		Gate:           identity.NewGate(store),
		Gateway:        notify.Noop{},
		Texts:          texts,
		Log:            zerolog.Nop(),
		MaxTextRunes:   cfg.Moderation.MaxTextRunes,
		MaxNameRunes:   cfg.Moderation.MaxNameRunes,
		IdempotencyTTL: cfg.IdempotencyTTL,
		NameSuffix:     func() int { return 7 },
	}
	mod := services.NewModerationService(store, notify.Noop{}, texts, zerolog.Nop(), 16)
	pub := &services.PublicationService{Store: store}

	r := gin.New()
	err := RegisterRoutes(r, Deps{
		Submission:  sub,
		Publication: pub,
		Moderation:  mod,
		Idempotency: StoreIdempotency(store),
	}, cfg)
	if err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return &testApp{r: r, store: store, mod: mod}
}

func (a *testApp) do(method, path, remote, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remote
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func callback(data string) string {
	b, _ := json.Marshal(map[string]any{
		"update_id": 1,
		"callback_query": map[string]any{
			"id":   "cb-" + data,
			"from": map[string]any{"id": 1, "is_bot": false, "first_name": "Mod"},
			"data": data,
		},
	})
	return string(b)
}

func TestRouter_HealthMetricsFallbacksAndCORS(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := app.do(http.MethodGet, "/health", "192.0.2.1:1", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("health: %d headers=%v", w.Code, w.Header())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected allow-all CORS")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	if w = app.do(http.MethodGet, "/metrics", "192.0.2.1:1", "", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d", w.Code)
	}
	if w = app.do(http.MethodGet, "/nope", "192.0.2.1:1", "", nil); w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"not_found"`) {
		t.Fatalf("404: %d %s", w.Code, w.Body.String())
	}
	if w = app.do(http.MethodPut, "/api/v1/comments", "192.0.2.1:1", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("405: %d", w.Code)
	}
}

func TestRouter_SubmitModeratePublishFlow(t *testing.T) {
	app := newTestApp(t, testConfig())
	const alice = "198.51.100.1:5000"

	w := app.do(http.MethodPost, "/api/v1/comments", alice, `{"text":"hello <b>world</b>"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var sub struct {
		Success     bool   `json:"success"`
		CommentID   string `json:"commentId"`
		DisplayName string `json:"displayName"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if !sub.Success || sub.CommentID == "" || sub.DisplayName != "Verified account #7" {
		t.Fatalf("unexpected submit body: %+v", sub)
	}

	// Same address, different port: still the same identity.
	w = app.do(http.MethodPost, "/submit-comment", "198.51.100.1:6000", `{"text":"again"}`, nil)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), `"already_pending"`) {
		t.Fatalf("second submit: %d %s", w.Code, w.Body.String())
	}

	// Nothing public yet.
	if w = app.do(http.MethodGet, "/comments", alice, "", nil); w.Body.String() != "[]" {
		t.Fatalf("listing before approval: %s", w.Body.String())
	}

	// Webhook without the secret is refused.
	if w = app.do(http.MethodPost, "/webhook", alice, callback("approve:"+sub.CommentID), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("webhook without secret: %d", w.Code)
	}
	w = app.do(http.MethodPost, "/api/v1/moderation/webhook", alice, callback("approve:"+sub.CommentID),
		map[string]string{notify.SecretHeader: "hook"})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook: %d", w.Code)
	}

	w = app.do(http.MethodGet, "/api/v1/comments", alice, "", nil)
	var list []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0]["commentId"] != sub.CommentID || list[0]["text"] != "hello world" || list[0]["verified"] != true {
		t.Fatalf("listing: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "fingerprint") {
		t.Fatalf("listing leaks fingerprint: %s", w.Body.String())
	}

	w = app.do(http.MethodPost, "/submit-comment", alice, `{"text":"more"}`, nil)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), `"already_approved"`) {
		t.Fatalf("after approval: %d %s", w.Code, w.Body.String())
	}

	// A second decision is an acknowledged no-op.
	w = app.do(http.MethodPost, "/webhook", alice, callback("reject:"+sub.CommentID),
		map[string]string{notify.SecretHeader: "hook"})
	if w.Code != http.StatusOK {
		t.Fatalf("replayed decision: %d", w.Code)
	}
	if c, _ := app.store.Get(context.Background(), sub.CommentID); c == nil || c.Status != "approved" {
		t.Fatalf("approved comment changed: %+v", c)
	}
}

func TestRouter_MineAndDelete(t *testing.T) {
	app := newTestApp(t, testConfig())
	const bob = "203.0.113.20:1"

	w := app.do(http.MethodGet, "/api/v1/comments/mine", bob, "", nil)
	if w.Body.String() != `{"hasComment":false}` || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("mine empty: %s %v", w.Body.String(), w.Header())
	}

	app.do(http.MethodPost, "/api/v1/comments", bob, `{"name":"Bob","text":"hi"}`, nil)
	w = app.do(http.MethodGet, "/api/v1/comments/mine", bob, "", nil)
	if !strings.Contains(w.Body.String(), `"status":"pending"`) || !strings.Contains(w.Body.String(), `"displayName":"Bob"`) {
		t.Fatalf("mine: %s", w.Body.String())
	}

	if w = app.do(http.MethodDelete, "/api/v1/comments/mine", bob, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w = app.do(http.MethodDelete, "/api/v1/comments/mine", bob, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
	if w = app.do(http.MethodPost, "/api/v1/comments", bob, `{"text":"fresh start"}`, nil); w.Code != http.StatusCreated {
		t.Fatalf("resubmit after delete: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_TokenModeSharesFingerprintAcrossRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.Mode = config.FingerprintAddressAndToken
	app := newTestApp(t, cfg)
	const carol = "203.0.113.30:1"
	tokenHdr := map[string]string{middleware.HeaderIdentityToken: "tok-1"}

	if w := app.do(http.MethodPost, "/submit-comment", carol, `{"text":"hi","clientId":"tok-1"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("legacy submit: %d %s", w.Code, w.Body.String())
	}

	w := app.do(http.MethodPost, "/check-comment", carol, `{"clientId":"tok-1"}`, nil)
	if !strings.Contains(w.Body.String(), `"hasComment":true`) {
		t.Fatalf("check-comment with body token: %s", w.Body.String())
	}
	w = app.do(http.MethodGet, "/api/v1/comments/mine", carol, "", tokenHdr)
	if !strings.Contains(w.Body.String(), `"hasComment":true`) {
		t.Fatalf("mine with header token: %s", w.Body.String())
	}

	w = app.do(http.MethodPost, "/api/v1/comments", carol, `{"text":"again","identityToken":"tok-1"}`, nil)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), `"already_pending"`) {
		t.Fatalf("resubmit with same body token: %d %s", w.Code, w.Body.String())
	}

	if w = app.do(http.MethodDelete, "/api/v1/comments/mine", carol, "", tokenHdr); w.Code != http.StatusNoContent {
		t.Fatalf("delete with header token: %d %s", w.Code, w.Body.String())
	}
	w = app.do(http.MethodPost, "/check-comment", carol, `{"clientId":"tok-1"}`, nil)
	if w.Body.String() != `{"hasComment":false}` {
		t.Fatalf("after delete: %s", w.Body.String())
	}

	app.do(http.MethodPost, "/submit-comment", carol, `{"text":"back","clientId":"tok-1"}`, nil)
	w = app.do(http.MethodPost, "/delete-comment", carol, `{"clientId":"tok-1"}`, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("legacy delete with body token: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_AddressModeIgnoresClientTokens(t *testing.T) {
	app := newTestApp(t, testConfig())
	const dave = "203.0.113.40:1"

	if w := app.do(http.MethodPost, "/submit-comment", dave, `{"text":"hi","clientId":"tok-1"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("first submit: %d %s", w.Code, w.Body.String())
	}
	w := app.do(http.MethodPost, "/submit-comment", dave, `{"text":"hi","clientId":"tok-2"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("new token from same address must be denied: %d %s", w.Code, w.Body.String())
	}
	w = app.do(http.MethodGet, "/api/v1/comments/mine", dave, "", map[string]string{middleware.HeaderIdentityToken: "tok-3"})
	if !strings.Contains(w.Body.String(), `"hasComment":true`) {
		t.Fatalf("mine: %s", w.Body.String())
	}
}

func TestRouter_ValidationErrors(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := app.do(http.MethodPost, "/api/v1/comments", "192.0.2.5:1", `{"text":"   "}`, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"missing_text"`) {
		t.Fatalf("empty: %d %s", w.Code, w.Body.String())
	}
	w = app.do(http.MethodPost, "/api/v1/comments", "192.0.2.5:1", `{"text":"`+strings.Repeat("x", 21)+`"}`, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"text_too_long"`) {
		t.Fatalf("long: %d %s", w.Code, w.Body.String())
	}
	big := bytes.Repeat([]byte("x"), 2<<20)
	w = app.do(http.MethodPost, "/api/v1/comments", "192.0.2.5:1", `{"text":"`+string(big)+`"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized body: %d", w.Code)
	}
}

func TestRouter_IdempotentReplay(t *testing.T) {
	app := newTestApp(t, testConfig())
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-1"}

	first := app.do(http.MethodPost, "/api/v1/comments", "192.0.2.9:1", `{"text":"once"}`, hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("first: %d", first.Code)
	}
	again := app.do(http.MethodPost, "/api/v1/comments", "192.0.2.9:1", `{"text":"once"}`, hdr)
	if again.Code != http.StatusOK || again.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %v", again.Code, again.Header())
	}
	var a, b map[string]any
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(again.Body.Bytes(), &b)
	if a["commentId"] != b["commentId"] {
		t.Fatalf("replay returned a different comment: %v vs %v", a, b)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	app := newTestApp(t, cfg)

	app.do(http.MethodPost, "/api/v1/comments", "192.0.2.30:1", `{"text":"one"}`, nil)
	w := app.do(http.MethodPost, "/api/v1/comments", "192.0.2.30:1", `{"text":"two"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// Listing is not rate limited.
	if w = app.do(http.MethodGet, "/api/v1/comments", "192.0.2.30:1", "", nil); w.Code != http.StatusOK {
		t.Fatalf("listing limited: %d", w.Code)
	}
}

func TestRouter_CORSAllowlistAndLegacyOff(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://site.example"}
	cfg.LegacyRoutes = false
	app := newTestApp(t, cfg)

	w := app.do(http.MethodGet, "/api/v1/comments", "192.0.2.1:1", "", map[string]string{"Origin": "https://site.example"})
	if w.Header().Get("Access-Control-Allow-Origin") != "https://site.example" {
		t.Fatalf("allowlisted origin not echoed: %v", w.Header())
	}
	w = app.do(http.MethodGet, "/api/v1/comments", "192.0.2.1:1", "", map[string]string{"Origin": "https://evil.example"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin allowed")
	}
	if w = app.do(http.MethodPost, "/submit-comment", "192.0.2.1:1", `{"text":"x"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("legacy route mounted: %d", w.Code)
	}
}
