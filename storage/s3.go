package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the part of *s3.Client used here.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3TargetsSource implements TargetsSource backed by S3
type S3TargetsSource struct {
	bucket string
	key    string
	s3     s3API
}

func NewS3TargetsSource(s3Client s3API, bucket, key string) *S3TargetsSource {
	return &S3TargetsSource{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3TargetsSource) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get targets object from S3: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// S3PlanStore implements PlanStore backed by S3, writing under prefix.
type S3PlanStore struct {
	bucket string
	prefix string
	s3     s3API
}

func NewS3PlanStore(s3Client s3API, bucket, prefix string) *S3PlanStore {
	return &S3PlanStore{
		bucket: bucket,
		prefix: prefix,
		s3:     s3Client,
	}
}

func (s *S3PlanStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path.Join(s.prefix, key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put plan object to S3: %w", err)
	}
	return nil
}
