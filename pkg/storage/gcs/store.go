// Copyright © 2018 One Concern

package gcs

import (
	"context"
	"io"
	"path"
	"strings"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcs struct {
	client         *gcsStorage.Client
	readOnlyClient *gcsStorage.Client
	bucket         string
	prefix         string
	l              *zap.Logger
}

// New builds a Google Cloud Storage backed store.
//
// When credentialFile is empty, the default application credentials apply.
func New(ctx context.Context, bucket, credentialFile string, opts ...Option) (storage.Store, error) {
	googleStore := &gcs{
		bucket: bucket,
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(googleStore)
	}
	if bucket == "" {
		return nil, status.ErrInvalidResource
	}

	clientOpts := func(scope string) []option.ClientOption {
		o := []option.ClientOption{option.WithScopes(scope)}
		if credentialFile != "" {
			o = append(o, option.WithCredentialsFile(credentialFile))
		}
		return o
	}

	var err error
	googleStore.readOnlyClient, err = gcsStorage.NewClient(ctx, clientOpts(gcsStorage.ScopeReadOnly)...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	googleStore.client, err = gcsStorage.NewClient(ctx, clientOpts(gcsStorage.ScopeFullControl)...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return googleStore, nil
}

func (g *gcs) key(objectName string) string {
	if g.prefix == "" {
		return objectName
	}
	return path.Join(g.prefix, objectName)
}

func (g *gcs) String() string {
	if g.prefix == "" {
		return "gs://" + g.bucket
	}
	return "gs://" + g.bucket + "/" + g.prefix
}

func (g *gcs) Has(ctx context.Context, objectName string) (bool, error) {
	_, err := g.readOnlyClient.Bucket(g.bucket).Object(g.key(objectName)).Attrs(ctx)
	if err != nil {
		if err == gcsStorage.ErrObjectNotExist {
			return false, nil
		}
		return false, toSentinelErrors(err)
	}
	return true, nil
}

func (g *gcs) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	g.l.Debug("gcs get", zap.String("objectName", objectName))
	objectReader, err := g.readOnlyClient.Bucket(g.bucket).Object(g.key(objectName)).NewReader(ctx)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return objectReader, nil
}

func (g *gcs) Put(ctx context.Context, objectName string, reader io.Reader, exclusive bool) error {
	object := g.client.Bucket(g.bucket).Object(g.key(objectName))
	if exclusive {
		object = object.If(gcsStorage.Conditions{DoesNotExist: true})
	}
	writer := object.NewWriter(ctx)
	if _, err := storage.PipeIO(writer, reader); err != nil {
		_ = writer.Close()
		return toSentinelErrors(err)
	}
	return toSentinelErrors(writer.Close())
}

func (g *gcs) Delete(ctx context.Context, objectName string) error {
	err := g.client.Bucket(g.bucket).Object(g.key(objectName)).Delete(ctx)
	if err == gcsStorage.ErrObjectNotExist {
		return nil
	}
	return toSentinelErrors(err)
}

func (g *gcs) Keys(ctx context.Context) ([]string, error) {
	var query *gcsStorage.Query
	trim := ""
	if g.prefix != "" {
		trim = g.prefix + "/"
		query = &gcsStorage.Query{Prefix: trim}
	}

	var keys []string
	objectsIterator := g.readOnlyClient.Bucket(g.bucket).Objects(ctx, query)
	for {
		attrs, err := objectsIterator.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, toSentinelErrors(err)
		}
		if key := strings.TrimPrefix(attrs.Name, trim); key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (g *gcs) Clear(ctx context.Context) error {
	keys, err := g.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := g.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
