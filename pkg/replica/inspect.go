package replica

import (
	"context"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
)

// StoreStatus describes the content of a local store
type StoreStatus struct {
	Store             string             `json:"store" yaml:"store"`
	StructuralVersion int                `json:"structuralVersion" yaml:"structuralVersion"`
	Epoch             uint64             `json:"epoch,omitempty" yaml:"epoch,omitempty"`
	DataVersion       model.RevisionCode `json:"dataVersion,omitempty" yaml:"dataVersion,omitempty"`
	Files             int                `json:"files" yaml:"files"`
	Bytes             int64              `json:"bytes" yaml:"bytes"`
	Manifest          model.Manifest     `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	IndexError        string             `json:"indexError,omitempty" yaml:"indexError,omitempty"`
}

// Consistent tells if the local store holds a complete dataset
func (s StoreStatus) Consistent() bool {
	return s.DataVersion != "" && s.IndexError == ""
}

// Inspect reads the versioning variables and the index held by a local store.
//
// An epoch of 0 means the store is empty.
func Inspect(ctx context.Context, opener *store.Opener, cfg Config) (*StoreStatus, error) {
	cfg = cfg.withDefaults()
	conn, err := opener.Open(ctx, cfg.StoreName, cfg.StructuralVersion)
	if err != nil {
		return nil, status.ErrStoreUnavailable.Wrap(err)
	}
	defer conn.Close()

	st := &StoreStatus{
		Store:             cfg.StoreName,
		StructuralVersion: conn.Version(),
	}
	err = conn.View(ctx, func(txn store.Txn) error {
		epoch, _, e := readEpoch(txn)
		if e != nil {
			return e
		}
		st.Epoch = epoch

		dataVersion, _, e := readDataVersion(txn)
		if e != nil {
			return e
		}
		st.DataVersion = dataVersion

		raw, e := txn.Get(store.Blobs, model.IndexKey)
		if e != nil {
			if errors.Is(e, store.ErrKeyNotFound) {
				return nil
			}
			return e
		}
		manifest, e := model.DecodeManifest(raw)
		if e != nil {
			st.IndexError = e.Error()
			return nil
		}
		st.Manifest = manifest
		st.Files = len(manifest)
		st.Bytes = manifest.TotalSize(manifest.Names())
		return nil
	})
	if err != nil {
		return nil, status.ErrStoreUnavailable.Wrap(err)
	}
	return st, nil
}
