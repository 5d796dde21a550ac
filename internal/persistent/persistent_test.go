package persistent

import (
	"fmt"
	"path/filepath"
	"testing"

	"ekv/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dumpMap(m map[string]string) func(put PutFunc) error {
	return func(put PutFunc) error {
		for k, v := range m {
			if err := put(k, v); err != nil {
				return err
			}
		}
		return nil
	}
}

func loadMap(t *testing.T, uri string) map[string]string {
	got := make(map[string]string)
	require.NoError(t, Load(uri, func(k, v string) error {
		got[k] = v
		return nil
	}))
	return got
}

func TestRoundTrip(t *testing.T) {
	data := make(map[string]string)
	for i := 0; i < 3000; i++ {
		data[fmt.Sprintf("key-%d", i)] = fmt.Sprintf("value-%d", i*i)
	}
	data[""] = "empty key"

	for _, scheme := range []string{"local", "leveldb"} {
		t.Run(scheme, func(t *testing.T) {
			uri := scheme + "://" + BackingPath(t.TempDir(), "/a/b/file.txt", types.SlotRange{Begin: 0, End: 100})
			require.NoError(t, Dump(uri, dumpMap(data)))
			assert.Equal(t, data, loadMap(t, uri))

			// a second dump replaces the first
			require.NoError(t, Dump(uri, dumpMap(map[string]string{"only": "one"})))
			assert.Equal(t, map[string]string{"only": "one"}, loadMap(t, uri))
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for _, scheme := range []string{"local", "leveldb"} {
		uri := scheme + "://" + filepath.Join(t.TempDir(), "nothing")
		err := Load(uri, func(k, v string) error { return nil })
		assert.ErrorIs(t, err, types.ErrNotFound, scheme)
	}
}

func TestResolve(t *testing.T) {
	_, p, err := Resolve("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", p)

	_, _, err = Resolve("s3://bucket/x")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, _, err = Resolve("local://")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	assert.Equal(t, "local:///data/f/0_65536", BackingPath("local:///data/", "f", types.FullSlotRange()))
}
