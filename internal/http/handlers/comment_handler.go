// Comment HTTP handlers.
//
// This file exposes REST endpoints for comments:
//   - POST   /comments        (submit an anonymous comment for moderation)
//   - GET    /comments        (list approved comments, ETag support)
//   - GET    /comments/mine   (status of the caller's own comment)
//   - DELETE /comments/mine   (withdraw the caller's own comment)
//
// Legacy aliases: POST /submit-comment, POST /check-comment and
// POST /delete-comment.
//
// Handlers are transport-thin: they bind input, resolve the caller's
// fingerprint, call application services, and translate results into HTTP
// responses. Text sanitization and length rules live in the services.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/http/middleware"
	"github.com/tbourn/go-comment-moderation/internal/services"
	"github.com/tbourn/go-comment-moderation/internal/utils"
)

//
// Service contracts (context-aware)
//

// SubmissionService admits comments and answers questions about the caller's
// own comment.
type SubmissionService interface {
	Submit(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error)
	Mine(ctx context.Context, fp string) (*domain.Comment, error)
	Revoke(ctx context.Context, fp string) (*domain.Comment, error)
}

// PublicationService lists approved comments.
type PublicationService interface {
	ListApproved(ctx context.Context, limit int) ([]domain.Comment, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// ModerationService processes inbound moderator decisions.
type ModerationService interface {
	Process(ctx context.Context, ev domain.DecisionEvent) (domain.Outcome, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the comment service.
type Handlers struct {
	subSvc SubmissionService
	pubSvc PublicationService
	modSvc ModerationService

	chatID  int64
	started time.Time
}

// New constructs Handlers bound to the given services.
func New(sub SubmissionService, pub PublicationService, mod ModerationService) *Handlers {
	return &Handlers{subSvc: sub, pubSvc: pub, modSvc: mod, started: time.Now()}
}

// WithModerationChat restricts webhook decisions to the given chat. Zero
// accepts any chat.
func (h *Handlers) WithModerationChat(id int64) *Handlers {
	h.chatID = id
	return h
}

//
// DTOs
//

// SubmitCommentRequest is the JSON payload for a new comment.
type SubmitCommentRequest struct {
	// Name is the optional display name; blank gets a generated one.
	Name string `json:"name" example:"Layla"`
	// Text is the comment body.
	Text string `json:"text" example:"Thank you for the lovely evening."`
	// IdentityToken is an optional client token mixed into the fingerprint
	// when FINGERPRINT_MODE=address+token. The Identify middleware reads it;
	// the X-Identity-Token header takes precedence.
	IdentityToken string `json:"identityToken,omitempty" example:"c-8f2b1e"`
	// ClientID is the legacy name for IdentityToken.
	ClientID string `json:"clientId,omitempty" swaggerignore:"true"`
}

// SubmitCommentResponse acknowledges an accepted comment.
type SubmitCommentResponse struct {
	Success     bool   `json:"success" example:"true"`
	CommentID   string `json:"commentId" example:"0b6f8a8e-0f55-4d7e-9c57-1f6f3c0a2d11"`
	DisplayName string `json:"displayName" example:"Layla"`
}

// CommentView is the public projection of an approved comment. It never
// carries the fingerprint.
type CommentView struct {
	CommentID   string `json:"commentId" example:"0b6f8a8e-0f55-4d7e-9c57-1f6f3c0a2d11"`
	DisplayName string `json:"displayName" example:"Layla"`
	Text        string `json:"text" example:"Thank you for the lovely evening."`
	// Timestamp is the submission time in Unix milliseconds.
	Timestamp int64 `json:"timestamp" example:"1760690000000"`
	Verified  bool  `json:"verified" example:"false"`
}

// MineResponse describes the caller's own comment, if any.
type MineResponse struct {
	HasComment  bool   `json:"hasComment" example:"true"`
	CommentID   string `json:"commentId,omitempty" example:"0b6f8a8e-0f55-4d7e-9c57-1f6f3c0a2d11"`
	Status      string `json:"status,omitempty" example:"pending" enums:"pending,approved"`
	DisplayName string `json:"displayName,omitempty" example:"Layla"`
}

//
// Helpers
//

const (
	defaultListLimit = 0 // everything, up to the service cap
	maxListLimit     = 500
)

func toView(c domain.Comment) CommentView {
	return CommentView{
		CommentID:   c.ID,
		DisplayName: c.DisplayName,
		Text:        c.Body,
		Timestamp:   c.CreatedAt.UnixMilli(),
		Verified:    c.Verified,
	}
}

// failSubmit maps submission errors onto the error envelope.
func failSubmit(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingText):
		fail(c, http.StatusBadRequest, ErrCodeMissingText, "comment text is required")
	case errors.Is(err, services.ErrTextTooLong):
		fail(c, http.StatusBadRequest, ErrCodeTextTooLong, "comment text too long")
	case errors.Is(err, services.ErrBadIdentity):
		fail(c, http.StatusBadRequest, ErrCodeBadIdentity, "caller identity unavailable")
	case errors.Is(err, services.ErrAlreadyApproved):
		failReason(c, http.StatusForbidden, ErrCodeIdentityDenied, ReasonAlreadyApproved,
			"an approved comment already exists for this identity")
	case errors.Is(err, services.ErrAlreadyPending):
		failReason(c, http.StatusForbidden, ErrCodeIdentityDenied, ReasonAlreadyPending,
			"a comment from this identity is awaiting moderation")
	case errors.Is(err, services.ErrIdentityDenied):
		fail(c, http.StatusForbidden, ErrCodeIdentityDenied, "identity denied")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// SubmitComment godoc
// @ID          submitComment
// @Summary     Submit a comment for moderation
// @Description Accepts an anonymous comment. One pending or approved comment is allowed per identity.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key   header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       X-Identity-Token  header  string  false "Optional client identity token"
// @Param       body              body    handlers.SubmitCommentRequest  true  "Comment payload"
//
// @Success     201  {object}  handlers.SubmitCommentResponse  "Accepted for moderation"
// @Success     200  {object}  handlers.SubmitCommentResponse  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse          "missing_text, text_too_long or bad_request"
// @Failure     403  {object}  handlers.ErrorResponse          "identity_denied"
// @Failure     429  {object}  handlers.ErrorResponse          "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse          "Internal error"
// @Router      /comments [post]
func (h *Handlers) SubmitComment(c *gin.Context) {
	h.submit(c, http.StatusCreated)
}

// SubmitCommentLegacy serves POST /submit-comment, which answers 200.
func (h *Handlers) SubmitCommentLegacy(c *gin.Context) {
	h.submit(c, http.StatusOK)
}

func (h *Handlers) submit(c *gin.Context, created int) {
	var req SubmitCommentRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.subSvc.Submit(c.Request.Context(), services.SubmitInput{
		Name:           req.Name,
		Text:           req.Text,
		Fingerprint:    middleware.FingerprintFrom(c),
		IdempotencyKey: key,
	})
	if err != nil {
		failSubmit(c, err)
		return
	}

	status := created
	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		status = http.StatusOK
	}
	ok(c, status, SubmitCommentResponse{
		Success:     true,
		CommentID:   res.Comment.ID,
		DisplayName: res.Comment.DisplayName,
	})
}

// ListComments godoc
// @ID          listComments
// @Summary     List approved comments
// @Description Returns approved comments, newest first. Supports If-None-Match.
// @Tags        Comments
// @Produce     json
//
// @Param       limit  query  int  false  "Maximum number of comments"  minimum(1) maximum(500)
//
// @Success     200  {array}   handlers.CommentView
// @Success     304  "Not modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultListLimit), 0, maxListLimit)

	// ETag pre-check (best effort).
	if count, last, err := h.pubSvc.Stats(ctx); err == nil {
		var ts int64
		if last != nil {
			ts = last.UnixMilli()
		}
		etag := fmt.Sprintf(`W/"comments:%d:%d:%d"`, count, ts, limit)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.pubSvc.ListApproved(ctx, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	out := make([]CommentView, 0, len(items))
	for _, it := range items {
		out = append(out, toView(it))
	}
	ok(c, http.StatusOK, out)
}

// GetMine godoc
// @ID          getMyComment
// @Summary     Status of the caller's comment
// @Tags        Comments
// @Produce     json
//
// @Param       X-Identity-Token  header  string  false "Optional client identity token"
//
// @Success     200  {object}  handlers.MineResponse
// @Failure     400  {object}  handlers.ErrorResponse  "bad_identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /comments/mine [get]
func (h *Handlers) GetMine(c *gin.Context) {
	cm, err := h.subSvc.Mine(c.Request.Context(), middleware.FingerprintFrom(c))
	switch {
	case errors.Is(err, services.ErrNoComment):
		ok(c, http.StatusOK, MineResponse{HasComment: false})
	case errors.Is(err, services.ErrBadIdentity):
		fail(c, http.StatusBadRequest, ErrCodeBadIdentity, "caller identity unavailable")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, MineResponse{
			HasComment:  true,
			CommentID:   cm.ID,
			Status:      string(cm.Status),
			DisplayName: cm.DisplayName,
		})
	}
}

// DeleteMine godoc
// @ID          deleteMyComment
// @Summary     Withdraw the caller's comment
// @Description Deletes the caller's pending or approved comment and frees the identity.
// @Tags        Comments
//
// @Param       X-Identity-Token  header  string  false "Optional client identity token"
//
// @Success     204  "Deleted"
// @Failure     400  {object}  handlers.ErrorResponse  "bad_identity"
// @Failure     404  {object}  handlers.ErrorResponse  "no_comment"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /comments/mine [delete]
func (h *Handlers) DeleteMine(c *gin.Context) {
	if h.revoke(c) {
		noContent(c)
	}
}

// DeleteMineLegacy serves POST /delete-comment, which answers 200 with
// {"success":true} instead of 204.
func (h *Handlers) DeleteMineLegacy(c *gin.Context) {
	if h.revoke(c) {
		ok(c, http.StatusOK, gin.H{"success": true})
	}
}

// revoke withdraws the caller's comment, writing the error response and
// returning false on failure.
func (h *Handlers) revoke(c *gin.Context) bool {
	_, err := h.subSvc.Revoke(c.Request.Context(), middleware.FingerprintFrom(c))
	switch {
	case errors.Is(err, services.ErrNoComment):
		fail(c, http.StatusNotFound, ErrCodeNoComment, "no comment for this identity")
	case errors.Is(err, services.ErrBadIdentity):
		fail(c, http.StatusBadRequest, ErrCodeBadIdentity, "caller identity unavailable")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		return true
	}
	return false
}
