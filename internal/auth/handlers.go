package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ossim/backend/internal/audit"
	"ossim/backend/pkg/config"
)

const (
	ctxUsername = "username"
	ctxRole     = "role"

	anonymousUser = "anonymous"
)

type AuthHandlers struct {
	enabled     bool
	provider    *LocalProvider
	rbac        *RBACManager
	auditLogger *audit.AuditLogger
}

// NewAuthHandlers builds the login handler and middleware. With auth disabled
// every request acts as an anonymous instructor.
func NewAuthHandlers(cfg config.AuthConfig, auditLogger *audit.AuditLogger) (*AuthHandlers, error) {
	h := &AuthHandlers{
		enabled:     cfg.Enabled,
		rbac:        NewRBACManager(),
		auditLogger: auditLogger,
	}
	if cfg.Enabled {
		provider, err := NewLocalProvider(cfg)
		if err != nil {
			return nil, err
		}
		h.provider = provider
	}
	return h, nil
}

func (h *AuthHandlers) Enabled() bool {
	return h.enabled
}

func (h *AuthHandlers) Login(c *gin.Context) {
	if !h.enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}

	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.provider.Authenticate(c.Request.Context(), creds)
	if err != nil {
		h.logLogin(c, creds.Username, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
		return
	}

	token, err := h.provider.GenerateToken(user)
	if err != nil {
		h.logLogin(c, creds.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token generation failed"})
		return
	}
	h.logLogin(c, user.Username, nil)

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"token":       token,
		"permissions": h.rbac.GetUIPermissions(user.Role),
	})
}

func (h *AuthHandlers) logLogin(c *gin.Context, username string, err error) {
	if h.auditLogger != nil {
		h.auditLogger.LogLogin(username, c.ClientIP(), c.GetHeader("User-Agent"), err)
	}
}

func (h *AuthHandlers) Me(c *gin.Context) {
	username, role := CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username":     username,
		"role":         role,
		"auth_enabled": h.enabled,
		"permissions":  h.rbac.GetUIPermissions(role),
	})
}

func (h *AuthHandlers) GetRoles(c *gin.Context) {
	roles := make([]gin.H, 0, 2)
	for _, role := range GetAllRoles() {
		roles = append(roles, gin.H{
			"name":        role,
			"description": GetRoleDescription(role),
			"permissions": h.rbac.GetRolePermissions(role),
		})
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (h *AuthHandlers) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.enabled {
			c.Set(ctxUsername, anonymousUser)
			c.Set(ctxRole, RoleInstructor)
			c.Next()
			return
		}

		// Browsers cannot set headers on a WebSocket upgrade, so ?token= is
		// accepted as well.
		tokenString := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := h.provider.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func (h *AuthHandlers) RequirePermission(permission Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.enabled {
			c.Next()
			return
		}
		role, ok := roleFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			c.Abort()
			return
		}
		if !h.rbac.HasPermission(role, permission) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *AuthHandlers) RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.enabled {
			c.Next()
			return
		}
		userRole, ok := roleFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			c.Abort()
			return
		}
		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
		c.Abort()
	}
}

func roleFrom(c *gin.Context) (Role, bool) {
	v, exists := c.Get(ctxRole)
	if !exists {
		return "", false
	}
	role, ok := v.(Role)
	return role, ok
}

// CurrentUser returns the caller set by RequireAuth, or anonymous viewer when
// the middleware did not run.
func CurrentUser(c *gin.Context) (string, Role) {
	role, ok := roleFrom(c)
	if !ok {
		return anonymousUser, RoleViewer
	}
	return c.GetString(ctxUsername), role
}
