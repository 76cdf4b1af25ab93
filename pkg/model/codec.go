// Copyright © 2018 One Concern

package model

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var gzipMagic = []byte{0x1f, 0x8b}

// EncodeManifest serializes a manifest in its wire format: a gzip-compressed JSON object
// keyed by file name, each value being a [revision, size] pair.
func EncodeManifest(m Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	wire := make(map[string][2]interface{}, len(m))
	for name, entry := range m {
		wire[name] = [2]interface{}{string(entry.Revision), entry.Size}
	}
	text, err := json.Marshal(wire)
	if err != nil {
		return nil, ErrInvalidEncoding.Wrap(err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err = zw.Write(text); err != nil {
		return nil, err
	}
	if err = zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses and validates a manifest in wire format.
//
// The payload must still be compressed when it reaches this point: a body which
// has been transparently decompressed by some intermediary is rejected.
func DecodeManifest(data []byte) (Manifest, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return nil, ErrInvalidEncoding.Wrap(fmt.Errorf("index is not gzip-compressed (decompressed in transit?)"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidEncoding.Wrap(err)
	}
	defer zr.Close()

	text, err := io.ReadAll(zr)
	if err != nil {
		return nil, ErrInvalidEncoding.Wrap(err)
	}
	return decodeManifestText(text)
}

func decodeManifestText(text []byte) (Manifest, error) {
	var wire map[string][]jsoniter.RawMessage
	if err := json.Unmarshal(text, &wire); err != nil {
		return nil, ErrInvalidEncoding.Wrap(err)
	}
	if wire == nil {
		return nil, ErrInvalidEncoding.Wrap(fmt.Errorf("expected a JSON object"))
	}

	m := make(Manifest, len(wire))
	for name, pair := range wire {
		if len(pair) != 2 {
			return nil, ErrInvalidEncoding.Wrap(fmt.Errorf("expected [revision, size] for %q", name))
		}
		var revision string
		if err := json.Unmarshal(pair[0], &revision); err != nil {
			return nil, ErrInvalidRevision.Wrap(fmt.Errorf("%s for %q", string(pair[0]), name))
		}
		size, err := strconv.ParseInt(strings.TrimSpace(string(pair[1])), 10, 64)
		if err != nil {
			return nil, ErrInvalidSize.Wrap(fmt.Errorf("%s for %q", string(pair[1]), name))
		}
		m[name] = Entry{Revision: RevisionCode(revision), Size: size}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
