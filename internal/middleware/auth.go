package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/storebot-go/internal/auth"
	"github.com/supportbot/storebot-go/internal/model"
	"github.com/supportbot/storebot-go/internal/service"
	"go.uber.org/zap"
)

const userContextKey = "user"

// IdentityResolver 由令牌解析用户
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*model.User, error)
}

// Auth 校验 Bearer 令牌，成功后把用户放入上下文
func Auth(identity IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		user, err := identity.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				logger.Warn("未通过身份校验",
					zap.String("path", c.FullPath()),
					zap.String("method", c.Request.Method),
					zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   auth.ErrInvalidToken.Error(),
					"kind":    service.KindAuth,
				})
				return
			}
			logger.Error("身份解析失败", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "身份解析失败",
				"kind":    service.KindPersistence,
			})
			return
		}

		SetUser(c, user)
		c.Next()
	}
}

// SetUser 写入当前用户
func SetUser(c *gin.Context, user *model.User) {
	c.Set(userContextKey, user)
	c.Set("user_id", user.ID)
}

// UserFromContext 返回当前用户
func UserFromContext(c *gin.Context) (*model.User, bool) {
	val, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*model.User)
	return user, ok && user != nil
}
