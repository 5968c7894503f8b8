package upload

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"cchat/internal/apperr"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// S3 stores attachments in a bucket and returns their object URL.
type S3 struct {
	Client  s3iface.S3API
	Bucket  string
	Prefix  string
	Region  string
	MaxSize int64
	// BaseURL overrides the public URL root (e.g. a CDN).
	BaseURL string
}

// NewS3 creates an S3 uploader using the default credential chain.
func NewS3(region, bucket, prefix string, maxSize int64) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3{Client: s3.New(sess), Bucket: bucket, Prefix: prefix, Region: region, MaxSize: maxSize}, nil
}

// Upload implements Uploader.
func (u *S3) Upload(ctx context.Context, file string) (string, error) {
	f, size, err := openChecked(file, u.MaxSize)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(u.Prefix, uuid.NewString()+strings.ToLower(filepath.Ext(file)))
	_, err = u.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return "", apperr.Upload(fmt.Errorf("put object: %w", err))
	}
	return u.objectURL(key), nil
}

func (u *S3) objectURL(key string) string {
	if u.BaseURL != "" {
		return strings.TrimSuffix(u.BaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, key)
}
