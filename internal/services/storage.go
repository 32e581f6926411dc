package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

// S3Config holds the credentials used for the ride archive bucket.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type objectUploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// RideArchiver writes a JSON snapshot of every ride that reaches a terminal
// status, to S3 when configured and to a local directory otherwise.
type RideArchiver struct {
	uploader objectUploader
	bucket   string
	dir      string
}

func NewS3RideArchiver(cfg S3Config) (*RideArchiver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &RideArchiver{uploader: s3manager.NewUploader(sess), bucket: cfg.Bucket}, nil
}

func NewLocalRideArchiver(dir string) (*RideArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &RideArchiver{dir: dir}, nil
}

func (a *RideArchiver) Publish(ctx context.Context, event models.Event) error {
	if event.Type != models.EventRideStatusChanged || !event.Primary() {
		return nil
	}
	if !models.RideStatus(event.NewStatus).IsTerminal() {
		return nil
	}
	ride, ok := event.Data.(models.Ride)
	if !ok {
		return fmt.Errorf("ride archive: unexpected payload %T", event.Data)
	}

	body, err := json.MarshalIndent(ride, "", "  ")
	if err != nil {
		return err
	}
	key := ArchiveKey(ride)

	if a.uploader != nil {
		_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
		return nil
	}

	path := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create folder directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// ArchiveKey places a ride under rides/<year>/<month>/<status>/<id>.json.
func ArchiveKey(ride models.Ride) string {
	return fmt.Sprintf("rides/%s/%s/%s.json", ride.CreatedAt.UTC().Format("2006/01"), ride.Status, ride.ID)
}
