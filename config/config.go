package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// Duration decodes "10s" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ByteSize decodes "128MB" style strings.
type ByteSize int64

func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := units.RAMInBytes(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

type Log struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
}

type Directory struct {
	Host        string   `toml:"host"`
	ServicePort int      `toml:"service_port"`
	LeasePort   int      `toml:"lease_port"`
	StatusAddr  string   `toml:"status_addr"`
	LeasePeriod Duration `toml:"lease_period"`
	GracePeriod Duration `toml:"grace_period"`
	Log         Log      `toml:"log"`
}

func (d Directory) ServiceAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.ServicePort)
}

func (d Directory) LeaseAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.LeasePort)
}

type Storage struct {
	Uuid             int64    `toml:"uuid"`
	Host             string   `toml:"host"`
	ServicePort      int      `toml:"service_port"`
	ManagementPort   int      `toml:"management_port"`
	NotificationPort int      `toml:"notification_port"`
	ChainPort        int      `toml:"chain_port"`
	NumBlocks        int      `toml:"num_blocks"`
	Capacity         ByteSize `toml:"capacity"`
	ThresholdHi      float64  `toml:"threshold_hi"`
	ThresholdLo      float64  `toml:"threshold_lo"`
	StatusAddr       string   `toml:"status_addr"`
	Log              Log      `toml:"log"`
}

type Configuration struct {
	Version   string    `toml:"version"`
	Log       Log       `toml:"log"`
	Directory Directory `toml:"directory"`
	Storage   []Storage `toml:"storage"`
}

// Default is a localhost cluster of one directory and three storage servers.
func Default() *Configuration {
	cc := &Configuration{
		Version: "1",
		Log:     Log{Level: "info"},
		Directory: Directory{
			Host:        "127.0.0.1",
			ServicePort: 9090,
			LeasePort:   9091,
			LeasePeriod: Duration{10 * time.Second},
			GracePeriod: Duration{10 * time.Second},
		},
	}
	for i := 0; i < 3; i++ {
		base := 9093 + i*10
		cc.Storage = append(cc.Storage, Storage{
			Uuid:             int64(i),
			Host:             "127.0.0.1",
			ServicePort:      base,
			ManagementPort:   base + 1,
			NotificationPort: base + 2,
			ChainPort:        base + 3,
			NumBlocks:        64,
			Capacity:         128 * units.MiB,
			ThresholdHi:      0.95,
			ThresholdLo:      0.05,
		})
	}
	return cc
}

// Load decodes the cluster file at path on top of Default.
func Load(path string) (*Configuration, error) {
	cc := Default()
	cc.Storage = nil
	md, err := toml.DecodeFile(path, cc)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("load config %s: unknown keys %v", path, undecoded)
	}
	if len(cc.Storage) == 0 {
		cc.Storage = Default().Storage
	}
	return cc, cc.Validate()
}

func Decode(data string) (*Configuration, error) {
	cc := Default()
	cc.Storage = nil
	if _, err := toml.Decode(data, cc); err != nil {
		return nil, err
	}
	if len(cc.Storage) == 0 {
		cc.Storage = Default().Storage
	}
	return cc, cc.Validate()
}

func (cc *Configuration) Validate() error {
	if cc.Directory.LeasePeriod.Duration <= 0 {
		return errors.New("directory.lease_period must be positive")
	}
	if cc.Directory.GracePeriod.Duration < 0 {
		return errors.New("directory.grace_period must not be negative")
	}
	seen := make(map[int64]bool)
	for i := range cc.Storage {
		s := &cc.Storage[i]
		if seen[s.Uuid] {
			return errors.Errorf("duplicate storage uuid %d", s.Uuid)
		}
		seen[s.Uuid] = true
		if s.NumBlocks <= 0 {
			return errors.Errorf("storage %d: num_blocks must be positive", s.Uuid)
		}
		if s.Capacity <= 0 {
			s.Capacity = ByteSize(128 * units.MiB)
		}
		if s.ThresholdHi <= 0 || s.ThresholdHi > 1 {
			s.ThresholdHi = 0.95
		}
		if s.ThresholdLo <= 0 || s.ThresholdLo >= s.ThresholdHi {
			s.ThresholdLo = 0.05
		}
	}
	return nil
}

// StorageNode returns the storage server entry with uuid.
func (cc *Configuration) StorageNode(uuid int64) (*Storage, error) {
	for i := range cc.Storage {
		if cc.Storage[i].Uuid == uuid {
			return &cc.Storage[i], nil
		}
	}
	return nil, errors.Errorf("storage uuid %d not in configuration", uuid)
}
