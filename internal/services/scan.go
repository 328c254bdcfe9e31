package services

import (
	"context"
	"log"

	clamd "github.com/dutchcoders/go-clamd"

	"github.com/CloudCabinet/Drive-Service/internal/models"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

// ScanUploadedObject streams a freshly uploaded object through ClamAV and
// removes it (store and catalog) when infected. Runs detached from the
// upload request; scan failures are logged, never surfaced to the
// uploader.
func ScanUploadedObject(key, userID, clamAvURL string) {
	ctx := context.Background()

	minioService := GetMinioService()
	drive := GetDriveService()
	if minioService == nil || drive == nil {
		log.Println("[SCAN] Services not available, skipping scan")
		return
	}

	obj, err := minioService.GetObject(ctx, key)
	if err != nil {
		log.Printf("[SCAN] Failed to fetch %s for scanning: %v", key, err)
		return
	}
	defer obj.Close()

	c := clamd.NewClamd(clamAvURL)
	abort := make(chan bool)
	defer close(abort)

	response, err := c.ScanStream(obj, abort)
	if err != nil {
		log.Printf("[SCAN] Scan failed for %s: %v", key, err)
		return
	}

	for res := range response {
		if res.Status != clamd.RES_FOUND {
			continue
		}
		log.Printf("[SCAN] Virus detected in %s: %s", key, res.Description)

		if err := drive.Delete(ctx, userID, key); err != nil {
			log.Printf("[SCAN] Failed to delete infected object %s: %v", key, err)
			return
		}
		drive.Activity.Record(ctx, models.ActionDelete, key, vfs.FileNameOf(key), userID, map[string]interface{}{
			"reason":    "virus_detected",
			"signature": res.Description,
		})
		return
	}

	log.Printf("[SCAN] Scan finished for %s: clean", key)
}
