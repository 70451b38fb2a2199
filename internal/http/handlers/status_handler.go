package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// StatusResponse is returned by the root endpoint.
type StatusResponse struct {
	Status string `json:"status" example:"running"`
	// Uptime is the process uptime in seconds.
	Uptime float64 `json:"uptime" example:"3600.5"`
}

// Health godoc
// @ID       health
// @Summary  Liveness probe
// @Tags     Status
// @Produce  json
// @Success  200  {object}  handlers.HealthResponse
// @Router   /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}

// Root godoc
// @ID       root
// @Summary  Service status and uptime
// @Tags     Status
// @Produce  json
// @Success  200  {object}  handlers.StatusResponse
// @Router   / [get]
func (h *Handlers) Root(c *gin.Context) {
	ok(c, http.StatusOK, StatusResponse{
		Status: "running",
		Uptime: time.Since(h.started).Seconds(),
	})
}
