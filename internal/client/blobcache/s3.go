package blobcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Cache.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config points at an S3-compatible endpoint such as MinIO.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// NewS3Client builds a client with static credentials and a custom endpoint.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Provider maps every cache to a key prefix inside one bucket.
type S3Provider struct {
	Client S3API
	Bucket string
	Prefix string
}

func (p S3Provider) Open(_ context.Context, name string) (Cache, error) {
	if p.Bucket == "" {
		return nil, errors.New("s3 bucket is not set")
	}
	return &S3Cache{client: p.Client, bucket: p.Bucket, prefix: path.Join(p.Prefix, name) + "/", name: name}, nil
}

// S3Cache stores blobs as objects under prefix.
type S3Cache struct {
	client S3API
	bucket string
	prefix string
	name   string
}

var _ Cache = (*S3Cache)(nil)

func (c *S3Cache) Name() string { return c.name }

func (c *S3Cache) objectKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c.prefix + key, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (c *S3Cache) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := c.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(k)})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", c.bucket, k, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", c.bucket, k, err)
	}
	return data, nil
}

func (c *S3Cache) Put(ctx context.Context, key string, data []byte) error {
	k, err := c.objectKey(key)
	if err != nil {
		return err
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", c.bucket, k, err)
	}
	return nil
}

func (c *S3Cache) Has(ctx context.Context, key string) (bool, error) {
	k, err := c.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(k)})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head s3://%s/%s: %w", c.bucket, k, err)
	}
	return true, nil
}

func (c *S3Cache) Delete(ctx context.Context, key string) error {
	k, err := c.objectKey(key)
	if err != nil {
		return err
	}
	_, err = c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(k)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete s3://%s/%s: %w", c.bucket, k, err)
	}
	return nil
}

func (c *S3Cache) List(ctx context.Context) ([]Entry, error) {
	var (
		out   []Entry
		token *string
	)
	for {
		page, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(c.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", c.bucket, c.prefix, err)
		}
		for _, obj := range page.Contents {
			e := Entry{Key: strings.TrimPrefix(aws.ToString(obj.Key), c.prefix), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				e.StoredAt = *obj.LastModified
			}
			out = append(out, e)
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

func (c *S3Cache) Size(ctx context.Context) (int64, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, e := range entries {
		n += e.Size
	}
	return n, nil
}

func (c *S3Cache) Clear(ctx context.Context) error {
	entries, err := c.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.Delete(ctx, e.Key); err != nil {
			return err
		}
	}
	return nil
}

func (c *S3Cache) URL(key string) string {
	return "s3://" + c.bucket + "/" + c.prefix + key
}
