// Moderation webhook handler.
//
// This file exposes the decision intake endpoint:
//   - POST /moderation/webhook   (Telegram update carrying a button press)
//
// The endpoint always answers 200 once the request is authenticated, so the
// gateway never retries a decision the processor has already resolved.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-comment-moderation/internal/http/middleware"
	"github.com/tbourn/go-comment-moderation/internal/notify"
)

// WebhookAck is the body returned to the gateway.
type WebhookAck struct {
	OK bool `json:"ok" example:"true"`
}

// ModerationWebhook godoc
// @ID          moderationWebhook
// @Summary     Receive a moderator decision
// @Description Accepts a Telegram update. Callback queries carrying "approve:<id>" or "reject:<id>"
// @Description are applied at most once; every other update is acknowledged and ignored.
// @Tags        Moderation
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  false  "Webhook secret, required when configured"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     401  {object}  handlers.ErrorResponse  "unauthorized"
// @Router      /moderation/webhook [post]
func (h *Handlers) ModerationWebhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	ev, chatID, err := notify.DecodeUpdate(c.Request.Body)
	switch {
	case errors.Is(err, notify.ErrNotDecision):
		ok(c, http.StatusOK, WebhookAck{OK: true})
		return
	case err != nil:
		lg.Warn().Err(err).Msg("webhook body not decodable")
		ok(c, http.StatusOK, WebhookAck{OK: true})
		return
	}
	if h.chatID != 0 && chatID != h.chatID {
		lg.Warn().Int64("chat_id", chatID).Msg("decision from unexpected chat ignored")
		ok(c, http.StatusOK, WebhookAck{OK: true})
		return
	}

	outcome, err := h.modSvc.Process(c.Request.Context(), ev)
	if err != nil {
		lg.Error().Err(err).Str("outcome", outcome.String()).Msg("decision processing failed")
	} else {
		lg.Info().Str("outcome", outcome.String()).Msg("decision processed")
	}
	ok(c, http.StatusOK, WebhookAck{OK: true})
}
