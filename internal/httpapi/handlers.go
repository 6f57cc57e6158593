package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetCompleteRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newTokenResponse(p *authcore.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		SessionID:        p.SessionID,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func (h *handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request")
		return
	}
	ctx := c.Request.Context()

	if err := h.engine.CheckPasswordPolicy(req.Password); err != nil {
		writeEngineError(c, err)
		return
	}

	exists, err := h.engine.SubjectExists(ctx, req.Email)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if exists {
		writeError(c, http.StatusConflict, "account_exists")
		return
	}

	subject, err := h.accounts.Register(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, identity.ErrExists):
		writeError(c, http.StatusConflict, "account_exists")
		return
	case err != nil:
		h.log.Warn("register failed", zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, authcore.ErrorKind(authcore.ErrUpstreamUnavailable))
		return
	}

	pair, err := h.engine.LoginSubject(ctx, subject)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newTokenResponse(pair))
}

func (h *handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request")
		return
	}

	pair, err := h.engine.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newTokenResponse(pair))
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request")
		return
	}

	pair, err := h.engine.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newTokenResponse(pair))
}

func (h *handler) logout(c *gin.Context) {
	res, ok := middleware.AuthResult(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.engine.Logout(c.Request.Context(), res.SessionID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) logoutAll(c *gin.Context) {
	res, ok := middleware.AuthResult(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.engine.LogoutAll(c.Request.Context(), res.Subject)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sessions_revoked": n})
}

// requestReset answers 202 whether or not the email is registered. The
// lookup and delivery run on the reset queue, so both cases return after the
// same work.
func (h *handler) requestReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request")
		return
	}

	h.resets.enqueue(c.Request.Context(), req.Email)
	writeJSON(c, http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *handler) completeReset(c *gin.Context) {
	var req resetCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request")
		return
	}

	if err := h.engine.CompleteReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) me(c *gin.Context) {
	res, ok := middleware.AuthResult(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	body := gin.H{
		"subject":    res.Subject,
		"session_id": res.SessionID,
		"expires_at": res.ExpiresAt,
	}
	if info, err := h.engine.GetSessionInfo(c.Request.Context(), res.SessionID); err == nil {
		body["session"] = gin.H{
			"issued_at":          info.IssuedAt,
			"refresh_expires_at": info.RefreshExpiresAt,
		}
	}
	writeJSON(c, http.StatusOK, body)
}

func (h *handler) health(c *gin.Context) {
	status := h.engine.Health(c.Request.Context())
	if !status.Available {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"status":           "ok",
		"redis_latency_ms": status.RedisLatency.Milliseconds(),
	})
}
