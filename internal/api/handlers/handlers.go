package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CloudCabinet/Drive-Service/internal/services"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

// Drive is the filesystem surface the handlers expose over HTTP.
// DriveService implements it; tests substitute a fake.
type Drive interface {
	List(ctx context.Context, prefix string) ([]services.Entry, error)
	Upload(ctx context.Context, userID, key string, reader io.Reader, size int64, contentType string) (services.Entry, error)
	CreateFolder(ctx context.Context, userID, key string) (services.Entry, error)
	Download(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, userID, key string) error
	Copy(ctx context.Context, userID, src, dst string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
}

var (
	driveSvc   Drive
	sessionSvc *services.SessionManager
	catalogSvc *services.PostgresService
	clamavURL  string
)

// Configure injects the service instances the handlers use.
func Configure(drive Drive, sessions *services.SessionManager, catalog *services.PostgresService, clamAvURL string) {
	driveSvc = drive
	sessionSvc = sessions
	catalogSvc = catalog
	clamavURL = clamAvURL
}

func HealthCheck(c *gin.Context) {
	if m := services.GetMinioService(); m != nil {
		if err := m.CheckConnection(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "object store unreachable"})
			return
		}
	}
	if catalogSvc != nil {
		if err := catalogSvc.CheckConnection(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "catalog unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// respondError maps the service error kinds onto HTTP statuses. Anything
// unclassified comes back as a generic message: internal detail stays in
// the logs.
func respondError(c *gin.Context, err error) {
	switch {
	case vfs.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case vfs.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case vfs.IsStoreUnavailable(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
