package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudCabinet/Drive-Service/internal/models"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

// fakeStore is an in-memory ObjectStore with S3-style paginated listing.
type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	contentType map[string]string
	pageSize    int
	failDelete  map[string]bool // keys whose batched delete fails
	batchCalls  int
	putCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     map[string][]byte{},
		contentType: map[string]string{},
		pageSize:    1000,
		failDelete:  map[string]bool{},
	}
}

func (f *fakeStore) Put(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &vfs.StoreUnavailableError{Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	f.objects[key] = data
	f.contentType[key] = contentType
	return nil
}

func (f *fakeStore) PutFolderMarker(ctx context.Context, key string) error {
	return f.Put(ctx, key, bytes.NewReader(nil), 0, FolderContentType)
}

func (f *fakeStore) Stat(_ context.Context, key string) (vfs.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return vfs.ObjectInfo{}, &vfs.NotFoundError{Key: key}
	}
	return vfs.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (f *fakeStore) PresignedGet(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.contentType, key)
	return nil
}

func (f *fakeStore) RemoveBatch(_ context.Context, keys []string) []vfs.KeyError {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	var failed []vfs.KeyError
	for _, k := range keys {
		if f.failDelete[k] {
			failed = append(failed, vfs.KeyError{Key: k, Err: errors.New("access denied")})
			continue
		}
		delete(f.objects, k)
		delete(f.contentType, k)
	}
	return failed
}

func (f *fakeStore) Copy(_ context.Context, srcKey, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[srcKey]
	if !ok {
		return &vfs.NotFoundError{Key: srcKey}
	}
	f.objects[dstKey] = append([]byte(nil), data...)
	f.contentType[dstKey] = f.contentType[srcKey]
	return nil
}

func (f *fakeStore) ListPage(_ context.Context, prefix, token string) (vfs.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		fmt.Sscanf(token, "%d", &start)
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	page := vfs.Page{}
	for _, k := range keys[start:end] {
		page.Objects = append(page.Objects, vfs.ObjectInfo{Key: k, Size: int64(len(f.objects[k]))})
	}
	if end < len(keys) {
		page.Truncated = true
		page.NextToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

// fakeCatalog is an in-memory Catalog with the same upsert semantics as
// the Postgres implementation (empty incoming owner keeps the old one).
type fakeCatalog struct {
	mu         sync.Mutex
	records    map[string]models.MetadataRecord
	failUpsert bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{records: map[string]models.MetadataRecord{}}
}

func (f *fakeCatalog) UpsertRecord(_ context.Context, rec models.MetadataRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("catalog write failed")
	}
	if existing, ok := f.records[rec.FilePath]; ok && rec.OwnerID == "" {
		rec.OwnerID = existing.OwnerID
	}
	rec.UpdatedAt = time.Now()
	f.records[rec.FilePath] = rec
	return nil
}

func (f *fakeCatalog) FindByPrefix(_ context.Context, prefix string) ([]models.MetadataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MetadataRecord
	for k, rec := range f.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (f *fakeCatalog) FindByOwner(_ context.Context, ownerID string) ([]models.MetadataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MetadataRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (f *fakeCatalog) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.records {
		if strings.HasPrefix(k, prefix) {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeCatalog) DeleteOne(_ context.Context, filePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, filePath)
	return nil
}

// fakeSink collects audit entries.
type fakeSink struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
}

func (f *fakeSink) InsertActivity(_ context.Context, e models.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSink) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestDrive() (*DriveService, *fakeStore, *fakeCatalog, *fakeSink) {
	store := newFakeStore()
	catalog := newFakeCatalog()
	sink := &fakeSink{}
	drive := &DriveService{Store: store, Catalog: catalog, Activity: NewActivityRecorder(sink)}
	return drive, store, catalog, sink
}

func TestUploadThenListOneLevel(t *testing.T) {
	drive, store, _, sink := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "user-1", "reports/q1.pdf", strings.NewReader("hello"), 5, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), store.objects["reports/q1.pdf"])

	entries, err := drive.List(ctx, "reports/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reports/q1.pdf", entries[0].Key)
	assert.Equal(t, "q1.pdf", entries[0].Name)
	assert.EqualValues(t, 5, entries[0].Size)
	assert.False(t, entries[0].IsFolder)

	assert.Equal(t, []string{models.ActionUpload}, sink.actions())
}

func TestUploadValidation(t *testing.T) {
	drive, store, _, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "u", "", strings.NewReader("x"), 1, "")
	assert.True(t, vfs.IsValidation(err))

	_, err = drive.Upload(ctx, "u", "../../etc", nil, 0, "")
	assert.True(t, vfs.IsValidation(err))

	_, err = drive.Upload(ctx, "u", "folder/", strings.NewReader("x"), 1, "")
	assert.True(t, vfs.IsValidation(err))

	assert.Zero(t, store.putCalls, "a rejected upload reached the store")
}

func TestUploadNormalizesTraversal(t *testing.T) {
	drive, store, _, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "u", "../../reports/../reports/q1.pdf", strings.NewReader("x"), 1, "")
	require.NoError(t, err)
	_, ok := store.objects["reports/q1.pdf"]
	assert.True(t, ok, "traversal input was not normalized before the store write")
}

func TestCreateFolderWritesMarker(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	entry, err := drive.CreateFolder(ctx, "user-1", "reports")
	require.NoError(t, err)
	assert.Equal(t, "reports/", entry.Key)

	data, ok := store.objects["reports/"]
	require.True(t, ok, "no marker object in the store")
	assert.Empty(t, data)
	assert.Equal(t, FolderContentType, store.contentType["reports/"])

	rec := catalog.records["reports/"]
	assert.True(t, rec.IsFolder)
	assert.EqualValues(t, 0, rec.Size)
	assert.Equal(t, "reports", rec.FileName)

	// Re-creating is a no-op success.
	_, err = drive.CreateFolder(ctx, "user-1", "reports/")
	assert.NoError(t, err)
}

func TestCopyTree(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.CreateFolder(ctx, "user-1", "reports")
	require.NoError(t, err)
	_, err = drive.Upload(ctx, "user-1", "reports/q1.pdf", strings.NewReader("hello"), 5, "application/pdf")
	require.NoError(t, err)
	_, err = drive.CreateFolder(ctx, "user-1", "reports/sub")
	require.NoError(t, err)
	_, err = drive.Upload(ctx, "user-1", "reports/sub/deep.txt", strings.NewReader("deep"), 4, "text/plain")
	require.NoError(t, err)

	require.NoError(t, drive.Copy(ctx, "user-2", "reports/", "archive/2024/"))

	assert.Equal(t, []byte("hello"), store.objects["archive/2024/q1.pdf"], "copied bytes differ")
	assert.Equal(t, []byte("deep"), store.objects["archive/2024/sub/deep.txt"])
	_, ok := store.objects["archive/2024/"]
	assert.True(t, ok, "destination folder marker missing")

	// Source remains intact.
	assert.Contains(t, store.objects, "reports/q1.pdf")

	// Catalog records carry recomputed names and folder-ness.
	rec := catalog.records["archive/2024/q1.pdf"]
	assert.Equal(t, "q1.pdf", rec.FileName)
	assert.False(t, rec.IsFolder)
	assert.EqualValues(t, 5, rec.Size)
	sub := catalog.records["archive/2024/sub/"]
	assert.Equal(t, "sub", sub.FileName)
	assert.True(t, sub.IsFolder)

	entries, err := drive.List(ctx, "archive/2024/")
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"archive/2024/q1.pdf", "archive/2024/sub/"}, keys)
}

func TestCopyFile(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "u", "a/x.txt", strings.NewReader("abc"), 3, "text/plain")
	require.NoError(t, err)

	require.NoError(t, drive.Copy(ctx, "u", "a/x.txt", "b/y.txt"))
	assert.Equal(t, []byte("abc"), store.objects["b/y.txt"])
	assert.Equal(t, "y.txt", catalog.records["b/y.txt"].FileName)
}

func TestCopyMissingSourceIsNotFound(t *testing.T) {
	drive, store, _, _ := newTestDrive()
	ctx := context.Background()

	err := drive.Copy(ctx, "u", "ghost.txt", "copy.txt")
	assert.True(t, vfs.IsNotFound(err))

	err = drive.Copy(ctx, "u", "ghost/", "copy/")
	assert.True(t, vfs.IsNotFound(err))
	_, ok := store.objects["copy/"]
	assert.False(t, ok, "destination marker created for a missing source")
}

func TestDeleteTreeAcrossPages(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	// 1199 files plus the marker: 1200 keys, forcing two pagination
	// rounds at page size 1000.
	_, err := drive.CreateFolder(ctx, "u", "reports")
	require.NoError(t, err)
	for i := 0; i < 1199; i++ {
		key := fmt.Sprintf("reports/file-%04d.txt", i)
		_, err := drive.Upload(ctx, "u", key, strings.NewReader("x"), 1, "")
		require.NoError(t, err)
	}
	require.Len(t, store.objects, 1200)

	require.NoError(t, drive.Delete(ctx, "u", "reports/"))

	assert.Empty(t, store.objects, "store keys survived the prefix delete")
	assert.Empty(t, catalog.records, "catalog records survived the prefix delete")
	assert.GreaterOrEqual(t, store.batchCalls, 2, "delete did not batch per page")

	entries, err := drive.List(ctx, "reports/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	drive, _, _, _ := newTestDrive()
	ctx := context.Background()

	assert.NoError(t, drive.Delete(ctx, "u", "never/was.txt"))
	assert.NoError(t, drive.Delete(ctx, "u", "never/"))
}

func TestDeletePartialBatchAbortsWalk(t *testing.T) {
	drive, store, _, _ := newTestDrive()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("reports/f%d.txt", i)
		_, err := drive.Upload(ctx, "u", key, strings.NewReader("x"), 1, "")
		require.NoError(t, err)
	}
	store.failDelete["reports/f3.txt"] = true

	err := drive.Delete(ctx, "u", "reports/")
	var pbe *vfs.PartialBatchError
	require.ErrorAs(t, err, &pbe)
	assert.Equal(t, "reports/f3.txt", pbe.Failed[0].Key)
	assert.Equal(t, 1, store.batchCalls, "walk continued past a failed batch")
}

func TestDownloadMissingMutatesNothing(t *testing.T) {
	drive, store, catalog, sink := newTestDrive()
	ctx := context.Background()

	_, err := drive.Download(ctx, "never/uploaded.txt")
	assert.True(t, vfs.IsNotFound(err))
	assert.Empty(t, store.objects)
	assert.Empty(t, catalog.records)
	assert.Empty(t, sink.actions())
}

func TestDownloadReturnsSignedURL(t *testing.T) {
	drive, _, _, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "u", "doc.pdf", strings.NewReader("x"), 1, "")
	require.NoError(t, err)

	url, err := drive.Download(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/doc.pdf", url)

	_, err = drive.Download(ctx, "some/folder/")
	assert.True(t, vfs.IsValidation(err))
}

func TestCatalogDesyncDoesNotFailUpload(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()
	catalog.failUpsert = true

	_, err := drive.Upload(ctx, "u", "a.txt", strings.NewReader("x"), 1, "")
	assert.NoError(t, err, "a catalog write failure surfaced as an upload failure")
	assert.Contains(t, store.objects, "a.txt")
	assert.Empty(t, catalog.records, "catalog unexpectedly has the record")
}

func TestReconcileRebuildsCatalog(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "user-1", "kept.txt", strings.NewReader("abc"), 3, "")
	require.NoError(t, err)

	// Desync in both directions: an object with no record and a record
	// with no object.
	store.objects["orphan/obj.txt"] = []byte("data")
	catalog.records["stale.txt"] = models.MetadataRecord{FilePath: "stale.txt", FileName: "stale.txt"}

	report, err := drive.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ObjectsSeen)
	assert.Equal(t, 1, report.RecordsRemoved)

	assert.Contains(t, catalog.records, "orphan/obj.txt")
	assert.NotContains(t, catalog.records, "stale.txt")
	// Attribution survives the rebuild.
	assert.Equal(t, "user-1", catalog.records["kept.txt"].OwnerID)
}

func TestDeleteAllForUser(t *testing.T) {
	drive, store, catalog, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "victim", "v/one.txt", strings.NewReader("1"), 1, "")
	require.NoError(t, err)
	_, err = drive.Upload(ctx, "victim", "v/two.txt", strings.NewReader("2"), 1, "")
	require.NoError(t, err)
	_, err = drive.Upload(ctx, "other", "o/keep.txt", strings.NewReader("3"), 1, "")
	require.NoError(t, err)

	n, err := drive.DeleteAllForUser(ctx, "victim")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, store.objects, "v/one.txt")
	assert.Contains(t, store.objects, "o/keep.txt")
	assert.NotContains(t, catalog.records, "v/two.txt")
	assert.Contains(t, catalog.records, "o/keep.txt")
}

func TestListRootAndInvalidPrefix(t *testing.T) {
	drive, _, _, _ := newTestDrive()
	ctx := context.Background()

	_, err := drive.Upload(ctx, "u", "top.txt", strings.NewReader("x"), 1, "")
	require.NoError(t, err)
	_, err = drive.Upload(ctx, "u", "dir/nested.txt", strings.NewReader("x"), 1, "")
	require.NoError(t, err)
	_, err = drive.CreateFolder(ctx, "u", "dir")
	require.NoError(t, err)

	entries, err := drive.List(ctx, "")
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"dir/", "top.txt"}, keys)

	// A prefix that normalizes away must not fall through to the root.
	_, err = drive.List(ctx, "../..")
	assert.True(t, vfs.IsValidation(err))
}

func TestEscapeLikePrefix(t *testing.T) {
	cases := map[string]string{
		"plain/prefix/": "plain/prefix/",
		"100%/done/":    `100\%/done/`,
		"under_score/":  `under\_score/`,
		`back\slash/`:   `back\\slash/`,
		`mix_%\of/all`:  `mix\_\%\\of/all`,
	}
	for in, want := range cases {
		assert.Equal(t, want, escapeLikePrefix(in), "escapeLikePrefix(%q)", in)
	}
}
