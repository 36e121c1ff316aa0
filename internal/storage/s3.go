package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/filetype"
	"github.com/local/imgconvert/internal/result"
)

const s3Scheme = "s3://"

// S3Options configures the S3 backend. Empty credentials fall back to the
// default AWS credential chain.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Bucket is used by health checks; paths carry their own bucket.
	Bucket string
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Storage is a Storage over s3://bucket/prefix paths.
type S3Storage struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
}

// NewS3 creates an S3 backend from opts.
func NewS3(ctx context.Context, opts S3Options) (*S3Storage, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	log.Info().Str("region", cfg.Region).Str("endpoint", opts.Endpoint).Msg("S3 storage configured")
	return NewS3WithClient(cli, opts.Bucket), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, uploader: manager.NewUploader(client), bucket: bucket}
}

// IsS3Path reports whether p uses the s3:// scheme.
func IsS3Path(p string) bool {
	return strings.HasPrefix(p, s3Scheme)
}

// ParseS3Path splits s3://bucket/key into bucket and key.
func ParseS3Path(p string) (bucket, key string, err error) {
	if !IsS3Path(p) {
		return "", "", fmt.Errorf("not an S3 path: %s", p)
	}
	rest := strings.TrimPrefix(p, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", p)
	}
	return bucket, key, nil
}

func joinKey(folder, name string) string {
	return strings.TrimSuffix(folder, "/") + "/" + name
}

// IterFiles lists supported objects directly under the folder prefix. S3
// returns keys in lexical order.
func (s *S3Storage) IterFiles(ctx context.Context, folder string) result.Result[[]FileItem] {
	bucket, prefix, err := ParseS3Path(folder)
	if err != nil {
		return result.Failure[[]FileItem](&converr.IOError{Op: "list", Path: folder, Err: err})
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var items []FileItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return result.Failure[[]FileItem](&converr.IOError{Op: "list", Path: folder, Err: err})
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := path.Base(*obj.Key)
			if !filetype.IsSupportedName(name) {
				continue
			}
			items = append(items, newItem(s3Scheme+bucket+"/"+*obj.Key, name))
		}
	}

	log.Debug().Str("folder", folder).Int("files", len(items)).Msg("listed S3 prefix")
	return result.Success(items)
}

func (s *S3Storage) ReadBytes(ctx context.Context, p string) result.Result[[]byte] {
	bucket, key, err := ParseS3Path(p)
	if err != nil {
		return result.Failure[[]byte](&converr.IOError{Op: "read", Path: p, Err: err})
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return result.Failure[[]byte](&converr.IOError{Op: "read", Path: p, Err: err})
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return result.Failure[[]byte](&converr.IOError{Op: "read", Path: p, Err: err})
	}
	return result.Success(data)
}

func (s *S3Storage) WriteBytes(ctx context.Context, p string, data []byte) result.Result[struct{}] {
	bucket, key, err := ParseS3Path(p)
	if err != nil {
		return result.Failure[struct{}](&converr.IOError{Op: "write", Path: p, Err: err})
	}
	contentType := mimetype.Detect(data).String()
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return result.Failure[struct{}](&converr.IOError{Op: "write", Path: p, Err: err})
	}

	log.Debug().Str("key", key).Int("size", len(data)).Str("content_type", contentType).Msg("uploaded to S3")
	return result.Success(struct{}{})
}

func (s *S3Storage) BuildDestPath(folder, name string) string {
	return joinKey(folder, name)
}

// Ping checks that the configured bucket is reachable.
func (s *S3Storage) Ping(ctx context.Context) error {
	if s.bucket == "" {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}
