package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/gin-gonic/gin"
)

// ContextAuthResultKey is the gin context key holding *authcore.AuthResult.
const ContextAuthResultKey = "authcore.result"

// GinGuard is Guard for gin routers. The result is stored both under
// ContextAuthResultKey and in the request context. The caller comes from
// c.ClientIP, so forwarding headers are honoured only for the proxies set
// with (*gin.Engine).SetTrustedProxies.
func GinGuard(engine Engine, class authcore.OperationClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engine == nil {
			abort(c, http.StatusUnauthorized)
			return
		}
		ctx := requestContext(c.Request, callerFromIP(c.ClientIP()))

		if status, ok := allow(ctx, engine, class); !ok {
			abort(c, status)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized)
			return
		}

		res, err := engine.Validate(ctx, token)
		if err != nil {
			abort(c, statusForValidate(err))
			return
		}

		c.Set(ContextAuthResultKey, res)
		c.Request = c.Request.WithContext(withResult(ctx, res))
		c.Next()
	}
}

// GinOptional attaches claims when present but does not block.
func GinOptional(engine Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c.Request, callerFromIP(c.ClientIP()))
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok && engine != nil {
			if res, err := engine.Validate(ctx, token); err == nil {
				c.Set(ContextAuthResultKey, res)
				ctx = withResult(ctx, res)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GinThrottle is Throttle for gin routers.
func GinThrottle(engine Limiter, class authcore.OperationClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c.Request, callerFromIP(c.ClientIP()))
		if engine != nil {
			if status, ok := allow(ctx, engine, class); !ok {
				abort(c, status)
				return
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AuthResult returns the result stored by GinGuard or GinOptional.
func AuthResult(c *gin.Context) (*authcore.AuthResult, bool) {
	v, ok := c.Get(ContextAuthResultKey)
	if !ok {
		return nil, false
	}
	res, ok := v.(*authcore.AuthResult)
	return res, ok
}

func abort(c *gin.Context, status int) {
	c.Header("Cache-Control", "no-store")
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody(status)})
}
