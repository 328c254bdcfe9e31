package services

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/CloudCabinet/Drive-Service/internal/models"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

// ObjectStore is the object-store client surface the drive needs.
// MinioService implements it; tests use an in-memory fake.
type ObjectStore interface {
	vfs.PageLister
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PutFolderMarker(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (vfs.ObjectInfo, error)
	PresignedGet(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
	RemoveBatch(ctx context.Context, keys []string) []vfs.KeyError
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// Catalog is the metadata-catalog client surface the drive needs.
// PostgresService implements it.
type Catalog interface {
	UpsertRecord(ctx context.Context, rec models.MetadataRecord) error
	FindByPrefix(ctx context.Context, prefix string) ([]models.MetadataRecord, error)
	FindByOwner(ctx context.Context, ownerID string) ([]models.MetadataRecord, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	DeleteOne(ctx context.Context, filePath string) error
}

// Entry is one row of a directory listing.
type Entry struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	IsFolder     bool      `json:"is_folder"`
	LastModified time.Time `json:"last_modified"`
}

// ReconcileReport summarizes one out-of-band catalog repair sweep.
type ReconcileReport struct {
	ObjectsSeen    int `json:"objects_seen"`
	RecordsUpdated int `json:"records_updated"`
	RecordsRemoved int `json:"records_removed"`
}

// maxDeleteBatch bounds one multi-key delete request (the S3 cap).
const maxDeleteBatch = 1000

// DriveService presents the flat object store as a hierarchical
// filesystem and keeps the metadata catalog synchronized after every
// mutation. The store mutation always goes first; a catalog write that
// fails afterwards is logged as a desync and repaired by Reconcile, never
// surfaced as the operation's own failure.
type DriveService struct {
	Store    ObjectStore
	Catalog  Catalog
	Activity *ActivityRecorder
}

var driveInstance *DriveService

func InitializeDrive(store ObjectStore, catalog Catalog, activity *ActivityRecorder) {
	driveInstance = &DriveService{Store: store, Catalog: catalog, Activity: activity}
}

func GetDriveService() *DriveService {
	return driveInstance
}

// syncUpsert mirrors a successful store mutation into the catalog.
func (d *DriveService) syncUpsert(ctx context.Context, op string, rec models.MetadataRecord) {
	if err := d.Catalog.UpsertRecord(ctx, rec); err != nil {
		desync := &vfs.CatalogDesyncError{Op: op, Key: rec.FilePath, Err: err}
		log.Printf("[SYNC] %v", desync)
	}
}

// List returns the direct children of prefix, folders and files
// interleaved in ascending key order. rawPrefix "" lists the root; a
// non-empty prefix that normalizes away is rejected rather than silently
// treated as the root.
func (d *DriveService) List(ctx context.Context, rawPrefix string) ([]Entry, error) {
	prefix := vfs.Normalize(rawPrefix)
	if prefix == "" && rawPrefix != "" {
		return nil, &vfs.ValidationError{Reason: "invalid prefix"}
	}
	if prefix != "" {
		prefix = vfs.EnsureFolderKey(prefix)
	}

	records, err := d.Catalog.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		if !vfs.IsDirectChild(prefix, rec.FilePath) {
			continue
		}
		entries = append(entries, Entry{
			Key:          rec.FilePath,
			Name:         rec.FileName,
			Size:         rec.Size,
			IsFolder:     rec.IsFolder,
			LastModified: rec.UpdatedAt,
		})
	}
	return entries, nil
}

// Upload writes a file object at key, overwriting any existing object.
func (d *DriveService) Upload(ctx context.Context, userID, rawKey string, reader io.Reader, size int64, contentType string) (Entry, error) {
	key := vfs.Normalize(rawKey)
	if key == "" {
		return Entry{}, &vfs.ValidationError{Reason: "key is required"}
	}
	if vfs.IsFolderKey(key) {
		return Entry{}, &vfs.ValidationError{Reason: "cannot upload to a folder key"}
	}
	if reader == nil || size < 0 {
		return Entry{}, &vfs.ValidationError{Reason: "file content is required"}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := d.Store.Put(ctx, key, reader, size, contentType); err != nil {
		return Entry{}, err
	}

	name := vfs.FileNameOf(key)
	d.syncUpsert(ctx, "upload", models.MetadataRecord{
		FilePath: key,
		FileName: name,
		Size:     size,
		IsFolder: false,
		OwnerID:  userID,
	})
	d.Activity.Record(ctx, models.ActionUpload, key, name, userID, map[string]interface{}{
		"size":         size,
		"content_type": contentType,
	})

	return Entry{Key: key, Name: name, Size: size, LastModified: time.Now()}, nil
}

// CreateFolder writes the zero-byte marker for key, coercing it into
// folder form. Creating an existing folder is a no-op success.
func (d *DriveService) CreateFolder(ctx context.Context, userID, rawKey string) (Entry, error) {
	key := vfs.Normalize(rawKey)
	if key == "" {
		return Entry{}, &vfs.ValidationError{Reason: "key is required"}
	}
	key = vfs.EnsureFolderKey(key)

	if err := d.Store.PutFolderMarker(ctx, key); err != nil {
		return Entry{}, err
	}

	name := vfs.FileNameOf(key)
	d.syncUpsert(ctx, "folder_create", models.MetadataRecord{
		FilePath: key,
		FileName: name,
		Size:     0,
		IsFolder: true,
		OwnerID:  userID,
	})
	d.Activity.Record(ctx, models.ActionFolderCreate, key, name, userID, nil)

	return Entry{Key: key, Name: name, IsFolder: true, LastModified: time.Now()}, nil
}

// Download returns a presigned temporary URL for a file key. A miss is a
// NotFoundError and mutates nothing.
func (d *DriveService) Download(ctx context.Context, rawKey string) (string, error) {
	key := vfs.Normalize(rawKey)
	if key == "" {
		return "", &vfs.ValidationError{Reason: "key is required"}
	}
	if vfs.IsFolderKey(key) {
		return "", &vfs.ValidationError{Reason: "cannot download a folder"}
	}

	if _, err := d.Store.Stat(ctx, key); err != nil {
		return "", err
	}
	return d.Store.PresignedGet(ctx, key)
}

// Delete removes a file key, or an entire tree when key is a folder
// marker. Deleting something that doesn't exist succeeds silently:
// absence is the desired end state.
func (d *DriveService) Delete(ctx context.Context, userID, rawKey string) error {
	key := vfs.Normalize(rawKey)
	if key == "" {
		return &vfs.ValidationError{Reason: "key is required"}
	}

	name := vfs.FileNameOf(key)

	if !vfs.IsFolderKey(key) {
		if err := d.Store.Remove(ctx, key); err != nil && !vfs.IsNotFound(err) {
			return err
		}
		if err := d.Catalog.DeleteOne(ctx, key); err != nil {
			log.Printf("[SYNC] %v", &vfs.CatalogDesyncError{Op: "delete", Key: key, Err: err})
		}
		d.Activity.Record(ctx, models.ActionDelete, key, name, userID, nil)
		return nil
	}

	// Folder: batched multi-key delete, one batch per listing page. The
	// page size matches the store's objects-per-delete cap, and the walk
	// includes the marker object itself. A failed batch aborts the walk;
	// already-deleted pages stay deleted.
	removed := 0
	err := vfs.Walk(ctx, d.Store, key, func(objects []vfs.ObjectInfo) error {
		for start := 0; start < len(objects); start += maxDeleteBatch {
			end := start + maxDeleteBatch
			if end > len(objects) {
				end = len(objects)
			}
			keys := make([]string, 0, end-start)
			for _, o := range objects[start:end] {
				keys = append(keys, o.Key)
			}
			if failed := d.Store.RemoveBatch(ctx, keys); len(failed) > 0 {
				return &vfs.PartialBatchError{Failed: failed}
			}
			removed += len(keys)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := d.Catalog.DeleteByPrefix(ctx, key); err != nil {
		log.Printf("[SYNC] %v", &vfs.CatalogDesyncError{Op: "folder_delete", Key: key, Err: err})
	}
	d.Activity.Record(ctx, models.ActionFolderDelete, key, name, userID, map[string]interface{}{
		"objects_removed": removed,
	})
	return nil
}

// Copy duplicates a file, or an entire tree when source is a folder
// marker. Copying a missing source is an error, unlike delete: there is
// nothing meaningful to duplicate.
func (d *DriveService) Copy(ctx context.Context, userID, rawSrc, rawDst string) error {
	src := vfs.Normalize(rawSrc)
	dst := vfs.Normalize(rawDst)
	if src == "" {
		return &vfs.ValidationError{Reason: "source is required"}
	}
	if dst == "" {
		return &vfs.ValidationError{Reason: "destination is required"}
	}

	if !vfs.IsFolderKey(src) {
		return d.copyFile(ctx, userID, src, dst)
	}
	return d.copyTree(ctx, userID, src, vfs.EnsureFolderKey(dst))
}

func (d *DriveService) copyFile(ctx context.Context, userID, src, dst string) error {
	if vfs.IsFolderKey(dst) {
		return &vfs.ValidationError{Reason: "destination of a file copy must be a file key"}
	}

	info, err := d.Store.Stat(ctx, src)
	if err != nil {
		return err
	}
	if err := d.Store.Copy(ctx, src, dst); err != nil {
		return err
	}

	name := vfs.FileNameOf(dst)
	d.syncUpsert(ctx, "copy", models.MetadataRecord{
		FilePath: dst,
		FileName: name,
		Size:     info.Size,
		IsFolder: false,
		OwnerID:  userID,
	})
	d.Activity.Record(ctx, models.ActionCopy, src, vfs.FileNameOf(src), userID, map[string]interface{}{
		"destination": dst,
	})
	return nil
}

func (d *DriveService) copyTree(ctx context.Context, userID, src, dst string) error {
	// Probe the source before creating anything at the destination.
	first, err := d.Store.ListPage(ctx, src, "")
	if err != nil {
		return err
	}
	if len(first.Objects) == 0 {
		return &vfs.NotFoundError{Key: src}
	}

	// Destination marker first, then the walk.
	if err := d.Store.PutFolderMarker(ctx, dst); err != nil {
		return err
	}
	d.syncUpsert(ctx, "copy", models.MetadataRecord{
		FilePath: dst,
		FileName: vfs.FileNameOf(dst),
		IsFolder: true,
		OwnerID:  userID,
	})

	copied := 0
	err = vfs.Walk(ctx, d.Store, src, func(objects []vfs.ObjectInfo) error {
		for _, obj := range objects {
			newKey, ok := vfs.Rebase(obj.Key, src, dst)
			if !ok {
				continue
			}
			if newKey == dst {
				// the source marker rebases onto the marker written above
				continue
			}
			if err := d.Store.Copy(ctx, obj.Key, newKey); err != nil {
				return &vfs.PartialBatchError{Failed: []vfs.KeyError{{Key: obj.Key, Err: err}}}
			}
			// Folder-ness is re-derived from the new path, never copied
			// from the source record.
			d.syncUpsert(ctx, "copy", models.MetadataRecord{
				FilePath: newKey,
				FileName: vfs.FileNameOf(newKey),
				Size:     obj.Size,
				IsFolder: vfs.IsFolderKey(newKey),
				OwnerID:  userID,
			})
			copied++
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.Activity.Record(ctx, models.ActionCopy, src, vfs.FileNameOf(src), userID, map[string]interface{}{
		"destination":    dst,
		"objects_copied": copied,
	})
	return nil
}

// DeleteAllForUser removes every object and record owned by userID. Fed
// by the users.deleted event.
func (d *DriveService) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	records, err := d.Catalog.FindByOwner(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.FilePath)
	}

	removed := 0
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		if failed := d.Store.RemoveBatch(ctx, keys[start:end]); len(failed) > 0 {
			return removed, &vfs.PartialBatchError{Failed: failed}
		}
		removed += end - start
	}

	for _, k := range keys {
		if err := d.Catalog.DeleteOne(ctx, k); err != nil {
			log.Printf("[SYNC] %v", &vfs.CatalogDesyncError{Op: "user_delete", Key: k, Err: err})
		}
	}
	return removed, nil
}

// Reconcile rebuilds the catalog from a full store listing: every live
// key gets a fresh record (recorded ownership is preserved), and records
// with no backing object are removed. This is the prescribed out-of-band
// repair for desyncs; it is not transactional with concurrent mutations.
func (d *DriveService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{}
	live := make(map[string]struct{})

	err := vfs.Walk(ctx, d.Store, "", func(objects []vfs.ObjectInfo) error {
		for _, obj := range objects {
			live[obj.Key] = struct{}{}
			report.ObjectsSeen++
			rec := models.MetadataRecord{
				FilePath: obj.Key,
				FileName: vfs.FileNameOf(obj.Key),
				Size:     obj.Size,
				IsFolder: vfs.IsFolderKey(obj.Key),
				// OwnerID left empty: the upsert keeps existing attribution
			}
			if err := d.Catalog.UpsertRecord(ctx, rec); err != nil {
				return err
			}
			report.RecordsUpdated++
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	records, err := d.Catalog.FindByPrefix(ctx, "")
	if err != nil {
		return report, err
	}
	for _, rec := range records {
		if _, ok := live[rec.FilePath]; ok {
			continue
		}
		if err := d.Catalog.DeleteOne(ctx, rec.FilePath); err != nil {
			return report, err
		}
		report.RecordsRemoved++
	}

	log.Printf("[SYNC] Reconcile complete: %d objects, %d records updated, %d records removed",
		report.ObjectsSeen, report.RecordsUpdated, report.RecordsRemoved)
	return report, nil
}
