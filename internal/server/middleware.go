package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/clinova/internal/observability/context"
)

const tenantIDKey = "tenant_id"

// TenantMiddleware requires a parseable X-Tenant-Id header on every
// versioned route and threads it through the request context.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-Tenant-Id"))
		if raw == "" {
			AbortWithError(c, newValidationError("tenant_id", "required", "X-Tenant-Id header is required"))
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid", "X-Tenant-Id header is not a valid id"))
			return
		}

		c.Set(tenantIDKey, tenantID)
		c.Request = c.Request.WithContext(
			obscontext.WithTenantID(c.Request.Context(), tenantID.String()),
		)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) snowflake.ID {
	if value, ok := c.Get(tenantIDKey); ok {
		if id, ok := value.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid", "invalid id"))
		return 0, false
	}
	return id, true
}

func parseIDQuery(c *gin.Context, name string) (snowflake.ID, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false, newValidationError(name, "invalid", "invalid id")
	}
	return id, true, nil
}
