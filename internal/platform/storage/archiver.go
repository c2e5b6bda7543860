package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Archiver writes raw webhook payloads to a Cloud Storage bucket for audit
// retention. Objects are write-once; existing objects are never overwritten.
type Archiver struct {
	client *gcs.Client
	bucket string
}

// NewArchiver constructs an Archiver bound to the given bucket.
func NewArchiver(client *gcs.Client, bucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	name := strings.TrimSpace(bucket)
	if name == "" {
		return nil, errors.New("storage archiver: bucket name is required")
	}
	return &Archiver{client: client, bucket: name}, nil
}

// ArchiveCallback stores the payload under the given object name.
func (a *Archiver) ArchiveCallback(ctx context.Context, objectName string, payload []byte) error {
	if a == nil || a.client == nil {
		return errors.New("storage archiver: not initialised")
	}
	name := strings.TrimSpace(objectName)
	if name == "" {
		return errors.New("storage archiver: object name is required")
	}

	obj := a.client.Bucket(a.bucket).Object(name).If(gcs.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage archiver: write %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		// Precondition failures mean the identical callback was already
		// archived; replays are expected and harmless.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return fmt.Errorf("storage archiver: close %s: %w", name, err)
	}
	return nil
}
