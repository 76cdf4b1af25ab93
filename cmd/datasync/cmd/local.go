package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/docker/go-units"
	"github.com/oneconcern/datasync/pkg/remote"
	"github.com/oneconcern/datasync/pkg/replica"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/oneconcern/datasync/pkg/store/bdgr"
	"github.com/oneconcern/datasync/pkg/store/sqlite"
	opentracing "github.com/opentracing/opentracing-go"
)

// openLocalStore builds an opener for the local store selected by flags.
//
// Without a store directory, it returns a nil opener.
func openLocalStore() (*store.Opener, error) {
	dir := datasyncFlags.store.Dir
	if dir == "" {
		return nil, nil
	}

	var backend store.Backend
	switch datasyncFlags.store.Backend {
	case backendBadger, "":
		opts := []bdgr.Option{bdgr.Logger(logger)}
		if datasyncFlags.store.MemTableSize != "" {
			size, err := units.RAMInBytes(datasyncFlags.store.MemTableSize)
			if err != nil || size <= 0 {
				return nil, fmt.Errorf("invalid memtable size: %q", datasyncFlags.store.MemTableSize)
			}
			opts = append(opts, bdgr.MemTableSize(size))
		}
		backend = bdgr.New(dir, opts...)
	case backendSQLite:
		backend = sqlite.New(dir, sqlite.Logger(logger))
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", datasyncFlags.store.Backend)
	}
	return store.NewOpener(backend, store.Logger(logger)), nil
}

func openRemoteSource(ctx context.Context) (storage.Store, error) {
	source, err := remote.NewSource(ctx, datasyncFlags.sync.Remote,
		remote.WithCredentialFile(datasyncFlags.root.credFile),
		remote.WithAWSConfig(aws.NewConfig().WithMaxRetries(0)),
		remote.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return storage.Instrument(opentracing.GlobalTracer(), logger, source), nil
}

func replicaConfig() replica.Config {
	cfg := replica.DefaultConfig()
	cfg.StoreName = datasyncFlags.store.Name
	if datasyncFlags.sync.Concurrency > 0 {
		cfg.Concurrency = datasyncFlags.sync.Concurrency
	}
	return cfg
}
