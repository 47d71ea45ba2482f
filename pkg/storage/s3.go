package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// DefaultPresignExpiry is how long presigned upload URLs stay valid.
const DefaultPresignExpiry = time.Hour

// S3Config configures the S3 adapter.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack). Implies path-style addressing.
	Endpoint      string
	PresignExpiry time.Duration
}

// s3API is the subset of the S3 client used by the adapter.
type s3API interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Adapter implements Adapter on an S3 bucket.
type S3Adapter struct {
	client    s3API
	presigner presignAPI
	cfg       S3Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewS3Adapter builds an adapter from static credentials, or from the default
// AWS credential chain when no access key is configured.
func NewS3Adapter(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Adapter(client, s3.NewPresignClient(client), cfg, logger), nil
}

func newS3Adapter(client s3API, presigner presignAPI, cfg S3Config, logger *zap.Logger) *S3Adapter {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = DefaultPresignExpiry
	}
	return &S3Adapter{
		client:    client,
		presigner: presigner,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.Named("s3"),
	}
}

func projectPrefix(projectID string) string {
	return projectID + "/"
}

func imageKey(projectID string) string {
	return projectPrefix(projectID) + ProjectImageName
}

// publicURL returns the URL an object is served from.
func (a *S3Adapter) publicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	escaped := strings.Join(segments, "/")

	if a.cfg.Endpoint != "" {
		return strings.TrimRight(a.cfg.Endpoint, "/") + "/" + a.cfg.Bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.cfg.Bucket, a.cfg.Region, escaped)
}

func (a *S3Adapter) ListFiles(ctx context.Context, projectID string) ([]FileInfo, error) {
	files := []FileInfo{}
	err := a.eachPage(ctx, projectID, func(objects []types.Object) error {
		for _, obj := range objects {
			files = append(files, FileInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteProjectDirectory removes every object under the project prefix, one
// listing page at a time.
func (a *S3Adapter) DeleteProjectDirectory(ctx context.Context, projectID string) error {
	var deleted int
	err := a.eachPage(ctx, projectID, func(objects []types.Object) error {
		if len(objects) == 0 {
			return nil
		}
		ids := make([]types.ObjectIdentifier, len(objects))
		for i, obj := range objects {
			ids[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.cfg.Bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("delete objects: %d of %d failed, first: %s", len(out.Errors), len(ids), aws.ToString(out.Errors[0].Message))
		}
		deleted += len(ids)
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Debug("Deleted project directory",
		zap.String("project_id", projectID),
		zap.Int("objects", deleted),
	)
	return nil
}

func (a *S3Adapter) eachPage(ctx context.Context, projectID string, fn func([]types.Object) error) error {
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.cfg.Bucket),
		Prefix: aws.String(projectPrefix(projectID)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if err := fn(page.Contents); err != nil {
			return err
		}
	}
	return nil
}

func (a *S3Adapter) DeleteProjectImage(ctx context.Context, projectID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(imageKey(projectID)),
	})
	if err != nil {
		return fmt.Errorf("delete project image: %w", err)
	}
	return nil
}

// GetPresignedURL presigns an upload of a new file of the given content type.
func (a *S3Adapter) GetPresignedURL(ctx context.Context, contentType, projectID string) (*PresignedURL, error) {
	key := fmt.Sprintf("%s%s/file-%d", projectPrefix(projectID), contentType, a.now().UnixMilli())
	return a.presignPut(ctx, key, contentType)
}

// GetPresignedProjectImageURL presigns an upload that replaces the project image.
func (a *S3Adapter) GetPresignedProjectImageURL(ctx context.Context, projectID string) (*PresignedURL, error) {
	return a.presignPut(ctx, imageKey(projectID), "image/*")
}

func (a *S3Adapter) presignPut(ctx context.Context, key, contentType string) (*PresignedURL, error) {
	req, err := a.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(a.cfg.PresignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &PresignedURL{URL: req.URL, PublicURL: a.publicURL(key)}, nil
}

var _ Adapter = (*S3Adapter)(nil)
