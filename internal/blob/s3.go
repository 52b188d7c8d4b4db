package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Bucket          string
	Region          string
	EndpointURL     string // set for MinIO and other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3Store keeps blobs in an S3 bucket. Payloads are spooled to a local temp
// file first so the size limit is enforced before anything is sent and the
// object is created by a single PutObject.
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	maxSize int64
	now     func() time.Time
}

func NewS3Store(ctx context.Context, cfg S3Config, maxSize int64) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	// MinIO needs path-style addressing
	var client *s3.Client
	if cfg.EndpointURL != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/"), maxSize: maxSize, now: time.Now}, nil
}

func (s *S3Store) Put(ctx context.Context, r io.Reader, contentType string) (Ref, error) {
	sp, err := spool(ctx, r, os.TempDir(), s.maxSize)
	if err != nil {
		return Ref{}, err
	}
	defer sp.discard()

	key := newKey(s.now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectName(key)),
		Body:          sp.file,
		ContentLength: aws.Int64(sp.size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"checksum": sp.checksum},
	})
	if err != nil {
		return Ref{}, fmt.Errorf("%w: put object: %v", ErrStorage, err)
	}

	return Ref{Key: key, Size: sp.size, Checksum: sp.checksum}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectName(key)),
	})
	if err != nil {
		return nil, s.translate(err, "get object")
	}
	return out.Body, nil
}

func (s *S3Store) Size(ctx context.Context, key string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectName(key)),
	})
	if err != nil {
		return 0, s.translate(err, "head object")
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectName(key)),
	})
	if err != nil {
		return s.translate(err, "delete object")
	}
	return nil
}

func (s *S3Store) Walk(ctx context.Context, fn func(Object) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("%w: list objects: %v", ErrStorage, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			if err := fn(Object{Key: key, Size: aws.ToInt64(obj.Size), ModTime: aws.ToTime(obj.LastModified)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Store) translate(err error, op string) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
