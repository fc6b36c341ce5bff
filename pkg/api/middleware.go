package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"StrategyRadar/pkg/auth"
)

const identityKey = "identity"

// requestLogger 记录每个请求
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := c.Get(identityKey); ok {
			fields = append(fields, zap.String("user_id", id.(auth.Identity).UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("请求失败", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("请求被拒绝", fields...)
		default:
			log.Info("请求完成", fields...)
		}
	}
}

// recovery 捕获panic并返回500
func recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("请求处理panic", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// authRequired 校验Bearer令牌并把身份写入上下文
func authRequired(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missing bearer token"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				_ = c.Error(err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func currentIdentity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Identity{}
}
