// Package objstore uploads export files to S3-compatible storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	mc       *minio.Client
	endpoint string
}

func New(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("objstore: endpoint is required")
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}
	return &Client{mc: mc, endpoint: endpoint}, nil
}

// UploadFile puts the file at filePath under bucket/key.
func (c *Client) UploadFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	_, err := c.mc.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", filepath.Base(filePath), bucket, key, err)
	}
	return nil
}

// URL is the s3:// style location of an object, for display.
func (c *Client) URL(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ObjectKey places an export under prefix/YYYY/MM/DD/<file name>.
func ObjectKey(prefix, filePath string, now time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), now.UTC().Format("2006/01/02"), filepath.Base(filePath))
}
