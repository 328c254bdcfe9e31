package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CloudCabinet/Drive-Service/internal/api/middleware"
)

// Login verifies an identity-provider bearer token and mints an opaque
// session token with a TTL.
func Login(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth"})
		return
	}
	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	if tokenStr == auth {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid format"})
		return
	}

	user, err := middleware.VerifyLoginToken(c.Request.Context(), tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	session, err := sessionSvc.Login(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       user,
	})
}

// Logout deletes the caller's session.
func Logout(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	if tokenStr == "" || tokenStr == auth {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session token"})
		return
	}

	if err := sessionSvc.Logout(c.Request.Context(), tokenStr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
