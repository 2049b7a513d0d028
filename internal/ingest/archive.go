package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archiver keeps a copy of each accepted import payload.
type Archiver interface {
	Archive(ctx context.Context, userID string, entity EntityType, body []byte) (string, error)
}

// S3PutAPI is the subset of the S3 client the archiver uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads under imports/<entity>/<yyyy/mm/dd>/<uuid>.json.
type S3Archiver struct {
	client S3PutAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver creates an archiver for bucket. An empty prefix means "imports".
func NewS3Archiver(client S3PutAPI, bucket, prefix string) *S3Archiver {
	if prefix == "" {
		prefix = "imports"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Archive stores body and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, userID string, entity EntityType, body []byte) (string, error) {
	key := fmt.Sprintf("%s/%s/%s/%s.json", a.prefix, entity, a.now().UTC().Format("2006/01/02"), uuid.NewString())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"user-id": userID},
	})
	if err != nil {
		return "", fmt.Errorf("put import archive: %w", err)
	}
	return key, nil
}
