package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/gin-gonic/gin"
)

// engineStatus maps engine sentinels to HTTP status codes. Order matters:
// the first match wins.
var engineStatus = []struct {
	err    error
	status int
}{
	{authcore.ErrRateLimited, http.StatusTooManyRequests},
	{authcore.ErrPasswordPolicy, http.StatusUnprocessableEntity},
	{authcore.ErrTokenAlreadyUsed, http.StatusConflict},
	{authcore.ErrInvalidCredentials, http.StatusUnauthorized},
	{authcore.ErrTokenInvalid, http.StatusUnauthorized},
	{authcore.ErrTokenExpired, http.StatusUnauthorized},
	{authcore.ErrTokenReused, http.StatusUnauthorized},
	{authcore.ErrSessionNotFound, http.StatusUnauthorized},
	{authcore.ErrSessionRevoked, http.StatusUnauthorized},
	{authcore.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
	{authcore.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{authcore.ErrEngineNotReady, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, s := range engineStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func writeEngineError(c *gin.Context, err error) {
	writeError(c, statusFor(err), authcore.ErrorKind(err))
}

func writeError(c *gin.Context, status int, code string) {
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func writeJSON(c *gin.Context, status int, body any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, body)
}
