package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthAndRoot(t *testing.T) {
	r := newRouter(New(&stubSubmission{}, &stubPublication{}, &stubModeration{}), "")

	w := do(r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/", nil, nil)
	var st StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.Status != "running" || st.Uptime < 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
