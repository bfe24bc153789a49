package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"poll-service/internal/poll"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOArchive stores the final record of every closed poll as a JSON object.
type MinIOArchive struct {
	client *minio.Client
	bucket string
}

func NewMinIOArchive(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	slog.Info("Successfully connected to MinIO", "endpoint", endpoint, "bucket", bucket)
	return &MinIOArchive{client: client, bucket: bucket}, nil
}

// Record archives closed polls and ignores every other activity.
func (m *MinIOArchive) Record(ctx context.Context, a poll.Activity) error {
	if a.Kind != poll.ActivityClosed || a.Poll == nil {
		return nil
	}

	body, err := json.Marshal(a.Poll)
	if err != nil {
		return fmt.Errorf("failed to encode poll %s: %w", a.PollID, err)
	}

	name := objectName(a.Poll)
	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

func objectName(p *poll.Poll) string {
	owner := p.Owner
	if owner == "" {
		owner = "_anonymous"
	}
	return fmt.Sprintf("polls/%s/%s.json", owner, p.ID)
}
