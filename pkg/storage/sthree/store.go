// Copyright © 2018 One Concern

package sthree

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"go.uber.org/zap"
)

// Option to build an S3 store
type Option func(*s3FS)

// Bucket to read from
func Bucket(bucket string) Option {
	return func(fs *s3FS) {
		fs.bucket = bucket
	}
}

// Prefix within the bucket under which the dataset is published
func Prefix(prefix string) Option {
	return func(fs *s3FS) {
		fs.prefix = strings.Trim(prefix, "/")
	}
}

// AWSConfig overrides the default AWS session configuration
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		fs.awsConfig = cfg
	}
}

// Logger for this store
func Logger(l *zap.Logger) Option {
	return func(fs *s3FS) {
		if l != nil {
			fs.l = l
		}
	}
}

// New builds an S3 backed store
func New(option Option, options ...Option) (storage.Store, error) {
	fs := &s3FS{
		awsConfig: aws.NewConfig(),
		l:         zap.NewNop(),
	}
	option(fs)
	for _, apply := range options {
		apply(fs)
	}
	if fs.bucket == "" {
		return nil, status.ErrInvalidResource
	}

	sess, err := session.NewSession(fs.awsConfig)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	fs.s3 = s3.New(sess)
	fs.uploader = s3manager.NewUploaderWithClient(fs.s3)
	return fs, nil
}

type s3FS struct {
	bucket    string
	prefix    string
	awsConfig *aws.Config
	s3        *s3.S3
	uploader  *s3manager.Uploader
	l         *zap.Logger
}

func (s *s3FS) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *s3FS) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if err = filterErrNotExists(toSentinelErrors(err)); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *s3FS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.l.Debug("s3 get", zap.String("key", s.key(key)))
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return obj.Body, nil
}

func (s *s3FS) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	if exclusive {
		has, err := s.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists
		}
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   rdr,
	})
	return toSentinelErrors(err)
}

func (s *s3FS) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	return filterErrNotExists(toSentinelErrors(err))
}

func (s *s3FS) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	trim := ""
	if s.prefix != "" {
		trim = s.prefix + "/"
	}
	eachPage := func(page *s3.ListObjectsV2Output, more bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), trim)
			if key != "" {
				keys = append(keys, key)
			}
		}
		return more
	}
	params := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if trim != "" {
		params.Prefix = aws.String(trim)
	}

	err := s.s3.ListObjectsV2PagesWithContext(ctx, params, eachPage)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return keys, nil
}

func (s *s3FS) Clear(ctx context.Context) error {
	params := &s3.ListObjectsInput{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		params.Prefix = aws.String(s.prefix + "/")
	}
	del := s3manager.NewBatchDeleteWithClient(s.s3)
	return toSentinelErrors(del.Delete(ctx, s3manager.NewDeleteListIterator(s.s3, params)))
}

func (s *s3FS) String() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}
