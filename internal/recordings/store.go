package recordings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/casavoz/call-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store keeps finished call recordings in S3. If bucket is empty, all
// operations are no-ops so the platform runs without recording storage.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates a recording Store.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled reports whether recording storage is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// KeyFor returns the object key for a call's recording, dated by the call's
// start time so the key is derivable from the conversation row alone.
func KeyFor(callSID string, startTime time.Time) string {
	return fmt.Sprintf("recordings/%d/%02d/%02d/%s.wav",
		startTime.Year(), startTime.Month(), startTime.Day(), callSID)
}

// Save uploads a finished WAV and returns its object key.
func (s *Store) Save(ctx context.Context, callSID string, startTime time.Time, wav []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if callSID == "" {
		return "", fmt.Errorf("recordings: call SID required")
	}
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}

	key := KeyFor(callSID, startTime)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(wav),
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("recordings: s3 put %s: %w", key, err)
	}

	s.logger.Info("recording stored",
		"call_sid", callSID,
		"s3_key", key,
		"bytes", len(wav),
	)
	return key, nil
}

// Open streams a stored recording. The caller closes the reader.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if !s.Enabled() {
		return nil, 0, fmt.Errorf("recordings: storage not configured")
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("recordings: s3 get %s: %w", key, err)
	}

	return out.Body, aws.ToInt64(out.ContentLength), nil
}
