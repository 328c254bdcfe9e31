package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudCabinet/Drive-Service/internal/services"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

type fakeDrive struct {
	listPrefix string
	listResult []services.Entry
	listErr    error

	uploadKey         string
	uploadUser        string
	uploadContentType string
	uploadErr         error

	folderKey string
	deleteKey string
	copySrc   string
	copyDst   string

	downloadErr error
}

func (f *fakeDrive) List(ctx context.Context, prefix string) ([]services.Entry, error) {
	f.listPrefix = prefix
	return f.listResult, f.listErr
}

func (f *fakeDrive) Upload(ctx context.Context, userID, key string, reader io.Reader, size int64, contentType string) (services.Entry, error) {
	f.uploadUser = userID
	f.uploadKey = key
	f.uploadContentType = contentType
	if f.uploadErr != nil {
		return services.Entry{}, f.uploadErr
	}
	return services.Entry{Key: key, Name: vfs.FileNameOf(key), Size: size}, nil
}

func (f *fakeDrive) CreateFolder(ctx context.Context, userID, key string) (services.Entry, error) {
	f.folderKey = key
	return services.Entry{Key: key + "/", IsFolder: true}, nil
}

func (f *fakeDrive) Download(ctx context.Context, key string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return "https://store.local/signed/" + key, nil
}

func (f *fakeDrive) Delete(ctx context.Context, userID, key string) error {
	f.deleteKey = key
	return nil
}

func (f *fakeDrive) Copy(ctx context.Context, userID, src, dst string) error {
	f.copySrc, f.copyDst = src, dst
	return nil
}

func (f *fakeDrive) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (f *fakeDrive) Reconcile(ctx context.Context) (services.ReconcileReport, error) {
	return services.ReconcileReport{}, nil
}

// newTestRouter wires the handlers behind a stub that injects user_id the
// way RequireSession does.
func newTestRouter(drive *fakeDrive, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	Configure(drive, nil, nil, "")

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	r.GET("/files", ListFiles)
	r.POST("/files", UploadFile)
	r.DELETE("/files", DeleteObject)
	r.GET("/files/download", DownloadFile)
	r.POST("/files/copy", CopyObject)
	r.POST("/folders", CreateFolder)
	return r
}

func TestListFilesPassesPrefix(t *testing.T) {
	drive := &fakeDrive{listResult: []services.Entry{
		{Key: "docs/", Name: "docs", IsFolder: true},
		{Key: "readme.txt", Name: "readme.txt", Size: 12},
	}}
	r := newTestRouter(drive, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files?prefix=docs", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "docs", drive.listPrefix)

	var body struct {
		Entries []services.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 2)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &vfs.ValidationError{Reason: "missing key"}, http.StatusBadRequest},
		{"not found", &vfs.NotFoundError{Key: "x"}, http.StatusNotFound},
		{"store down", &vfs.StoreUnavailableError{Err: errors.New("conn refused")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drive := &fakeDrive{listErr: tc.err}
			r := newTestRouter(drive, "u1")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestUploadRequiresSession(t *testing.T) {
	r := newTestRouter(&fakeDrive{}, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/files", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadIntoFolderKey(t *testing.T) {
	drive := &fakeDrive{}
	r := newTestRouter(drive, "u1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("key", "docs/reports/"))
	fw, err := mw.CreateFormFile("file", "q3.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "docs/reports/q3.pdf", drive.uploadKey)
	assert.Equal(t, "u1", drive.uploadUser)
}

func TestUploadWithoutFile(t *testing.T) {
	r := newTestRouter(&fakeDrive{}, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/files", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateFolderValidatesBody(t *testing.T) {
	drive := &fakeDrive{}
	r := newTestRouter(drive, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/folders", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/folders", bytes.NewBufferString(`{"key":"photos/2026"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "photos/2026", drive.folderKey)
}

func TestDownloadReturnsURL(t *testing.T) {
	r := newTestRouter(&fakeDrive{}, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/download?key=readme.txt", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.URL, "readme.txt")
}

func TestDownloadMissingIs404(t *testing.T) {
	r := newTestRouter(&fakeDrive{downloadErr: &vfs.NotFoundError{Key: "nope"}}, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/download?key=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCopyObject(t *testing.T) {
	drive := &fakeDrive{}
	r := newTestRouter(drive, "u1")

	body := bytes.NewBufferString(`{"source":"docs/","destination":"backup/docs/"}`)
	req := httptest.NewRequest(http.MethodPost, "/files/copy", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "docs/", drive.copySrc)
	assert.Equal(t, "backup/docs/", drive.copyDst)
}

func TestDeleteObject(t *testing.T) {
	drive := &fakeDrive{}
	r := newTestRouter(drive, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/files?key=old/report.pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "old/report.pdf", drive.deleteKey)
}
