package persistent

import (
	"os"
	"path/filepath"

	"ekv/types"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const levelBatchSize = 1024

// levelBackend keeps one LevelDB database per block range.
type levelBackend struct{}

func (levelBackend) Dump(path string, walk func(put PutFunc) error) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithStack(err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return errors.Wrapf(err, "open leveldb %s", path)
	}
	defer db.Close()

	batch := new(leveldb.Batch)
	err = walk(func(key, value string) error {
		batch.Put([]byte(key), []byte(value))
		if batch.Len() >= levelBatchSize {
			if err := db.Write(batch, nil); err != nil {
				return err
			}
			batch.Reset()
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "dump %s", path)
	}
	if batch.Len() > 0 {
		if err := db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
			return errors.Wrapf(err, "dump %s", path)
		}
	}
	return nil
}

func (levelBackend) Load(path string, fn PutFunc) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(types.ErrNotFound, "load %s", path)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return errors.Wrapf(err, "open leveldb %s", path)
	}
	defer db.Close()

	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(string(iter.Key()), string(iter.Value())); err != nil {
			return err
		}
	}
	return errors.WithStack(iter.Error())
}
