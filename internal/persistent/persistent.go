package persistent

import (
	"strings"

	"ekv/types"

	"github.com/pkg/errors"
)

// PutFunc receives one key/value pair during a dump.
type PutFunc func(key, value string) error

// Backend stores the contents of one block range under a path.
type Backend interface {
	// Dump replaces whatever is stored at path with the pairs walk produces.
	Dump(path string, walk func(put PutFunc) error) error
	// Load calls fn for every stored pair.
	Load(path string, fn PutFunc) error
}

const DefaultScheme = "local"

var backends = map[string]Backend{
	"local":   localBackend{},
	"leveldb": levelBackend{},
}

// Resolve splits "scheme://path" and finds its backend; a bare path is local.
func Resolve(uri string) (Backend, string, error) {
	scheme, path := DefaultScheme, uri
	if idx := strings.Index(uri, "://"); idx >= 0 {
		scheme, path = uri[:idx], uri[idx+3:]
	}
	if path == "" {
		return nil, "", errors.Wrapf(types.ErrInvalidArgument, "empty persistent path in %q", uri)
	}
	b, ok := backends[scheme]
	if !ok {
		return nil, "", errors.Wrapf(types.ErrInvalidArgument, "unknown persistent scheme %q", scheme)
	}
	return b, path, nil
}

func Dump(uri string, walk func(put PutFunc) error) error {
	b, path, err := Resolve(uri)
	if err != nil {
		return err
	}
	return b.Dump(path, walk)
}

func Load(uri string, fn PutFunc) error {
	b, path, err := Resolve(uri)
	if err != nil {
		return err
	}
	return b.Load(path, fn)
}

// BackingPath is where the chain owning slots of file persists.
func BackingPath(prefix, file string, slots types.SlotRange) string {
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(file, "/") {
		file = "/" + file
	}
	return prefix + file + "/" + slots.String()
}
