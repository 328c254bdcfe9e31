package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CloudCabinet/Drive-Service/internal/services"
)

// maxUploadSize caps one uploaded file at 200 MB.
const maxUploadSize = 200 << 20

// ListFiles returns one directory level under ?prefix= (root when empty).
func ListFiles(c *gin.Context) {
	entries, err := driveSvc.List(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// UploadFile stores one multipart file at the key given in the "key"
// form field. A missing key falls back to the client filename; a key
// ending in "/" is treated as the destination folder.
func UploadFile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large: " + fileHeader.Filename})
		return
	}

	key := c.PostForm("key")
	if key == "" {
		key = fileHeader.Filename
	} else if strings.HasSuffix(key, "/") {
		key += fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")

	entry, err := driveSvc.Upload(c.Request.Context(), userID, key, file, fileHeader.Size, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	if clamavURL != "" {
		go services.ScanUploadedObject(entry.Key, userID, clamavURL)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"file":    entry,
	})
}

type createFolderRequest struct {
	Key string `json:"key" binding:"required"`
}

// CreateFolder writes a folder marker at the requested key.
func CreateFolder(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	entry, err := driveSvc.CreateFolder(c.Request.Context(), userID, req.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Folder created successfully",
		"folder":  entry,
	})
}

// DownloadFile returns a temporary signed URL for ?key=.
func DownloadFile(c *gin.Context) {
	url, err := driveSvc.Download(c.Request.Context(), c.Query("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type copyRequest struct {
	Source      string `json:"source" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

// CopyObject duplicates a file or a whole folder tree.
func CopyObject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and destination are required"})
		return
	}

	if err := driveSvc.Copy(c.Request.Context(), userID, req.Source, req.Destination); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Copy completed successfully",
		"source":      req.Source,
		"destination": req.Destination,
	})
}

// DeleteObject removes the file or folder tree at ?key=.
func DeleteObject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	key := c.Query("key")
	if err := driveSvc.Delete(c.Request.Context(), userID, key); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Deleted successfully",
		"key":     key,
	})
}
