package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/CloudCabinet/Drive-Service/internal/models"
)

// ActivitySink is where audit entries land; PostgresService implements it.
type ActivitySink interface {
	InsertActivity(ctx context.Context, e models.ActivityEntry) error
}

// ActivityRecorder appends one immutable audit entry per mutation and
// fans the event out over JetStream. It never blocks or fails the primary
// operation: by the time Record runs the mutation has already committed
// to the store, so a logging failure is reported and swallowed.
type ActivityRecorder struct {
	Sink ActivitySink
}

func NewActivityRecorder(sink ActivitySink) *ActivityRecorder {
	return &ActivityRecorder{Sink: sink}
}

// Record appends an entry for action on filePath. details is a free-form
// structured payload (e.g. the destination key of a copy) and may be nil.
func (r *ActivityRecorder) Record(ctx context.Context, action, filePath, fileName, userID string, details map[string]interface{}) {
	if r == nil || r.Sink == nil {
		return
	}

	var detailsJSON string
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		} else {
			log.Printf("[AUDIT] Failed to encode details for %s %s: %v", action, filePath, err)
		}
	}

	entry := models.ActivityEntry{
		Action:   action,
		FilePath: filePath,
		FileName: fileName,
		Details:  detailsJSON,
		UserID:   userID,
	}
	if err := r.Sink.InsertActivity(ctx, entry); err != nil {
		log.Printf("[AUDIT] Failed to record %s for %s: %v", action, filePath, err)
	}

	event := map[string]interface{}{
		"action":    action,
		"file_path": filePath,
		"file_name": fileName,
		"user_id":   userID,
		"details":   details,
	}
	if err := PublishEvent("drive."+action, event); err != nil {
		log.Printf("[AUDIT] Failed to publish drive.%s event: %v", action, err)
	}
}
