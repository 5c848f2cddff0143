package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/middleware"
	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// auditMeta describes the caller for services that write audit logs.
func auditMeta(c *gin.Context) service.AuditMeta {
	meta := service.AuditMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := claimsFromContext(c); claims != nil {
		meta.ActorID = claims.UserID
	}
	return meta
}

// bindJSON decodes the request body and writes a 400 on failure.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Validation(err, message))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
