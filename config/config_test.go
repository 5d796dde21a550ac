package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
version = "1"

[log]
level = "debug"

[directory]
host = "10.0.0.1"
service_port = 7000
lease_port = 7001
lease_period = "1s"
grace_period = "500ms"

[[storage]]
uuid = 3
host = "10.0.0.2"
service_port = 7100
management_port = 7101
notification_port = 7102
chain_port = 7103
num_blocks = 8
capacity = "1MB"
threshold_hi = 0.8

[[storage]]
uuid = 4
host = "10.0.0.3"
service_port = 7100
management_port = 7101
notification_port = 7102
chain_port = 7103
num_blocks = 8
`

func TestDecode(t *testing.T) {
	cc, err := Decode(sample)
	require.NoError(t, err)

	assert.Equal(t, "debug", cc.Log.Level)
	assert.Equal(t, "10.0.0.1:7000", cc.Directory.ServiceAddr())
	assert.Equal(t, time.Second, cc.Directory.LeasePeriod.Duration)
	assert.Equal(t, 500*time.Millisecond, cc.Directory.GracePeriod.Duration)
	require.Len(t, cc.Storage, 2)

	s, err := cc.StorageNode(3)
	require.NoError(t, err)
	assert.Equal(t, ByteSize(units.MiB), s.Capacity)
	assert.Equal(t, 0.8, s.ThresholdHi)
	assert.Equal(t, 0.05, s.ThresholdLo)

	s, err = cc.StorageNode(4)
	require.NoError(t, err)
	assert.Equal(t, ByteSize(128*units.MiB), s.Capacity)

	_, err = cc.StorageNode(5)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ekv.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))
	cc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cc.Storage, 2)

	require.NoError(t, os.WriteFile(path, []byte(sample+"\nbogus = 1\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, err := Decode("[directory]\nlease_period = \"0s\"\n")
	assert.Error(t, err)

	_, err = Decode("[[storage]]\nuuid = 1\nnum_blocks = 1\n[[storage]]\nuuid = 1\nnum_blocks = 1\n")
	assert.Error(t, err)

	cc := Default()
	require.NoError(t, cc.Validate())
	assert.Len(t, cc.Storage, 3)

	// omitted thresholds fall back to the defaults
	cc.Storage[0].ThresholdHi, cc.Storage[0].ThresholdLo = 0, 0
	require.NoError(t, cc.Validate())
	assert.Equal(t, 0.95, cc.Storage[0].ThresholdHi)
	assert.Equal(t, 0.05, cc.Storage[0].ThresholdLo)
}
