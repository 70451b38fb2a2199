package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/services"
)

//
// Stubs
//

type stubSubmission struct {
	submitFn func(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error)
	mineFn   func(ctx context.Context, fp string) (*domain.Comment, error)
	revokeFn func(ctx context.Context, fp string) (*domain.Comment, error)

	lastInput services.SubmitInput
}

func (s *stubSubmission) Submit(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error) {
	s.lastInput = in
	return s.submitFn(ctx, in)
}

func (s *stubSubmission) Mine(ctx context.Context, fp string) (*domain.Comment, error) {
	return s.mineFn(ctx, fp)
}

func (s *stubSubmission) Revoke(ctx context.Context, fp string) (*domain.Comment, error) {
	return s.revokeFn(ctx, fp)
}

type stubPublication struct {
	items    []domain.Comment
	count    int64
	last     *time.Time
	err      error
	statsErr error

	lastLimit int
	listCalls int
}

func (s *stubPublication) ListApproved(_ context.Context, limit int) ([]domain.Comment, error) {
	s.lastLimit = limit
	s.listCalls++
	return s.items, s.err
}

func (s *stubPublication) Stats(context.Context) (int64, *time.Time, error) {
	return s.count, s.last, s.statsErr
}

type stubModeration struct {
	events  []domain.DecisionEvent
	outcome domain.Outcome
	err     error
}

func (s *stubModeration) Process(_ context.Context, ev domain.DecisionEvent) (domain.Outcome, error) {
	s.events = append(s.events, ev)
	return s.outcome, s.err
}

//
// Router helpers
//

// newRouter mounts h on a test engine. fp, when non-empty, is injected as the
// middleware fingerprint.
func newRouter(h *Handlers, fp string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		if fp != "" {
			c.Set("fingerprint", fp)
		}
		if k := c.GetHeader("Idempotency-Key"); k != "" {
			c.Set("idem.key", k)
		}
		c.Next()
	})
	r.POST("/comments", h.SubmitComment)
	r.POST("/submit-comment", h.SubmitCommentLegacy)
	r.GET("/comments", h.ListComments)
	r.GET("/comments/mine", h.GetMine)
	r.DELETE("/comments/mine", h.DeleteMine)
	r.POST("/delete-comment", h.DeleteMineLegacy)
	r.POST("/webhook", h.ModerationWebhook)
	r.GET("/health", h.Health)
	r.GET("/", h.Root)
	return r
}

func do(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er
}
