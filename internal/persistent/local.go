package persistent

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"ekv/types"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

const localVersion = 1

type localHeader struct {
	Version int
}

type localRecord struct {
	Key   string
	Value string
}

// localBackend writes an lz4 compressed gob stream per block range.
type localBackend struct{}

func (localBackend) Dump(path string, walk func(put PutFunc) error) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithStack(err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	zw := lz4.NewWriter(f)
	enc := gob.NewEncoder(zw)
	if err = enc.Encode(localHeader{Version: localVersion}); err != nil {
		return errors.WithStack(err)
	}
	err = walk(func(key, value string) error {
		return enc.Encode(localRecord{Key: key, Value: value})
	})
	if err != nil {
		return errors.Wrapf(err, "dump %s", path)
	}
	if err = zw.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Sync(); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, path))
}

func (localBackend) Load(path string, fn PutFunc) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return errors.Wrapf(types.ErrNotFound, "load %s", path)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dec := gob.NewDecoder(lz4.NewReader(f))
	var hdr localHeader
	if err := dec.Decode(&hdr); err != nil {
		return errors.Wrapf(err, "load %s: header", path)
	}
	if hdr.Version != localVersion {
		return errors.Errorf("load %s: unsupported version %d", path, hdr.Version)
	}
	for {
		var rec localRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "load %s", path)
		}
		if err := fn(rec.Key, rec.Value); err != nil {
			return err
		}
	}
}
