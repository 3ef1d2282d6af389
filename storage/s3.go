package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
)

// S3API is the subset of the s3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base objects are served from. Defaults to the
	// virtual hosted AWS URL, or endpoint/bucket for custom endpoints.
	PublicURL string
}

// S3 implements account.AvatarStorage on an S3 bucket.
type S3 struct {
	client    S3API
	bucket    string
	publicURL string
	logger    account.Logger
}

var _ account.AvatarStorage = (*S3)(nil)

type Option func(*S3)

func WithLogger(l account.Logger) Option {
	return func(s *S3) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewS3(client S3API, bucket, publicURL string, opts ...Option) *S3 {
	s := &S3{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    account.ResolveLogger("storage", nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewS3FromConfig builds the client from static credentials when given,
// otherwise from the default AWS credential chain.
func NewS3FromConfig(ctx context.Context, cfg Config, opts ...Option) (*S3, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3(client, cfg.Bucket, PublicURL(cfg), opts...), nil
}

// PublicURL resolves the base URL objects of cfg are served from.
func PublicURL(cfg Config) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func (s *S3) UploadBuffer(ctx context.Context, input account.UploadInput) (*account.UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(input.FileName),
		Body:          bytes.NewReader(input.Buffer),
		ContentLength: aws.Int64(int64(len(input.Buffer))),
	}
	if input.MimeType != "" {
		params.ContentType = aws.String(input.MimeType)
	}
	if input.PublicAccess {
		params.ACL = types.ObjectCannedACLPublicRead
	}
	if tagging := EncodeTags(input.Tags); tagging != "" {
		params.Tagging = aws.String(tagging)
	}

	if _, err := s.client.PutObject(ctx, params); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to upload object").
			WithMetadata(map[string]any{"key": input.FileName})
	}

	s.logger.Debug("uploaded object %s to bucket %s", input.FileName, s.bucket)
	return &account.UploadResult{Location: s.Location(input.FileName)}, nil
}

func (s *S3) Remove(ctx context.Context, reference string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reference),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to remove object").
			WithMetadata(map[string]any{"key": reference})
	}
	return nil
}

// Location is the public URL of key.
func (s *S3) Location(key string) string {
	return s.publicURL + "/" + url.PathEscape(key)
}

// EncodeTags renders tags in the URL query form S3 expects, sorted by key.
func EncodeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}

// Unavailable stands in when no bucket is configured. Uploads fail,
// removals are no-ops.
type Unavailable struct{}

var _ account.AvatarStorage = Unavailable{}

func (Unavailable) UploadBuffer(context.Context, account.UploadInput) (*account.UploadResult, error) {
	return nil, goerrors.New("avatar storage is not configured", goerrors.CategoryOperation).
		WithTextCode("AVATAR_STORAGE_UNAVAILABLE")
}

func (Unavailable) Remove(context.Context, string) error { return nil }
