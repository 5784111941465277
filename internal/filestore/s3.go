package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lumosgraph/backend/internal/logger"
)

// S3Store keeps files under {prefix}/{user_id}/{thread_id}/{filename}.
type S3Store struct {
	log    *logger.Logger
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, log *logger.Logger, bucket, prefix, region string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("filestore: bucket name is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("filestore: load aws config: %w", err)
	}
	return &S3Store{
		log:    log.With("store", "s3", "bucket", bucket),
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3Store) key(userID, threadID, filename string) string {
	if s.prefix == "" {
		return fmt.Sprintf("%s/%s/%s", userID, threadID, filename)
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.prefix, userID, threadID, filename)
}

func (s *S3Store) Upload(ctx context.Context, userID, threadID, filename string, body io.Reader) (string, error) {
	key := s.key(userID, threadID, filename)
	ct := ContentType(filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        body,
		ContentType: &ct,
	})
	if err != nil {
		return "", fmt.Errorf("filestore: upload %s: %w", key, err)
	}
	s.log.Debug("uploaded", "key", key)
	return key, nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("filestore: download %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, userID, threadID, filename string) (bool, error) {
	key := s.key(userID, threadID, filename)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, userID, threadID, filename string) error {
	key := s.key(userID, threadID, filename)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("filestore: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, userID, threadID string) ([]Object, error) {
	prefix := s.key(userID, threadID, "")
	var out []Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("filestore: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := ""
			if obj.Key != nil {
				key = *obj.Key
			}
			o := Object{Key: key}
			if i := strings.LastIndex(key, "/"); i >= 0 {
				o.Filename = key[i+1:]
			} else {
				o.Filename = key
			}
			if obj.Size != nil {
				o.Size = *obj.Size
			}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			out = append(out, o)
		}
	}
	return out, nil
}
