package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/gcs"
	"github.com/oneconcern/datasync/pkg/storage/httpfs"
	"github.com/oneconcern/datasync/pkg/storage/localfs"
	"github.com/oneconcern/datasync/pkg/storage/sthree"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"go.uber.org/zap"
)

type sourceConfig struct {
	credentialFile string
	awsConfig      *aws.Config
	l              *zap.Logger
}

// SourceOption configures the store built by NewSource
type SourceOption func(*sourceConfig)

// WithCredentialFile sets the credentials used by Google Cloud Storage sources
func WithCredentialFile(pth string) SourceOption {
	return func(c *sourceConfig) {
		c.credentialFile = pth
	}
}

// WithAWSConfig sets the AWS configuration used by S3 sources
func WithAWSConfig(cfg *aws.Config) SourceOption {
	return func(c *sourceConfig) {
		c.awsConfig = cfg
	}
}

// WithLogger sets the logger of the source store
func WithLogger(l *zap.Logger) SourceOption {
	return func(c *sourceConfig) {
		if l != nil {
			c.l = l
		}
	}
}

// NewSource builds a read-only remote source from some URI:
//
//   - gs://bucket[/prefix]: Google Cloud Storage
//   - s3://bucket[/prefix]: AWS S3
//   - http(s)://host/path: web server
//   - file:///path or a plain path: local directory
func NewSource(ctx context.Context, uri string, opts ...SourceOption) (storage.Store, error) {
	cfg := sourceConfig{
		l: zap.NewNop(),
	}
	for _, apply := range opts {
		apply(&cfg)
	}
	if uri == "" {
		return nil, status.ErrInvalidResource.Wrap(fmt.Errorf("empty remote source"))
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain paths, including windows drive letters
		return localfs.NewDir(uri), nil
	}

	switch strings.ToLower(u.Scheme) {
	case "gs":
		return gcs.New(ctx, u.Host, cfg.credentialFile, gcs.Prefix(u.Path), gcs.Logger(cfg.l))
	case "s3":
		options := []sthree.Option{sthree.Prefix(u.Path), sthree.Logger(cfg.l)}
		if cfg.awsConfig != nil {
			options = append(options, sthree.AWSConfig(cfg.awsConfig))
		}
		return sthree.New(sthree.Bucket(u.Host), options...)
	case "http", "https":
		return httpfs.New(uri, httpfs.Logger(cfg.l))
	case "file":
		return localfs.NewDir(u.Path), nil
	default:
		return nil, status.ErrInvalidResource.Wrap(fmt.Errorf("unsupported remote source scheme %q", u.Scheme))
	}
}
