package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/agrotrace/agrotrace/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// claimsKey is the gin context key under which verified role claims travel.
const claimsKey = "roleClaims"

// RequireToken returns a middleware that verifies the bearer token and stores
// its claims on the context. allowedRoles restricts which roles may pass; an
// empty list admits any verified role.
func RequireToken(tokens *identity.TokenIssuer, allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" || raw == c.GetHeader("Authorization") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if len(allowed) > 0 {
			if _, ok := allowed[claims.Role]; !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "role " + claims.Role + " may not perform this operation",
				})
				return
			}
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// roleClaims retrieves the verified claims stored by RequireToken.
func roleClaims(c *gin.Context) *identity.RoleClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*identity.RoleClaims)
	return claims
}

// AuthHandler issues role tokens in exchange for the static admin secret.
// This is the development/bootstrap path; production deployments are expected
// to plug token issuance into their own user management.
type AuthHandler struct {
	tokens      *identity.TokenIssuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tokens *identity.TokenIssuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, adminSecret: adminSecret, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/tokens", h.IssueToken)
}

type issueTokenRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	Role          string `json:"role" binding:"required"`
}

// IssueToken handles POST /auth/tokens.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if h.adminSecret == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "token issuance is disabled"})
		return
	}
	secret := c.GetHeader("X-Admin-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.tokens.Issue(req.ParticipantID, req.Role)
	if err != nil {
		h.logger.Error("issue role token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"role":  req.Role,
	})
}
