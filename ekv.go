package ekv

import (
	"os"
	"strconv"

	"ekv/config"
	"ekv/internal/client"
	"ekv/internal/common"
	"ekv/internal/directory"
	"ekv/internal/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	_ directory.StorageOps = (*client.StorageClient)(nil)
	_ directory.StorageOps = (*storage.LocalCluster)(nil)
	_ storage.Rebalancer   = (*client.DirectoryClient)(nil)
	_ storage.Rebalancer   = (*directory.DirectoryTree)(nil)
)

// UuidEnv names the storage server when no uuid is given on the command line.
const UuidEnv = "EKV_UUID"

// newLogger builds a node logger; the node's own log section overrides the cluster's.
func newLogger(cluster, node config.Log) (*zap.SugaredLogger, error) {
	l := cluster
	if node.Level != "" {
		l.Level = node.Level
	}
	if node.File != "" {
		l.File = node.File
		l.MaxSize, l.MaxBackups, l.MaxAge = node.MaxSize, node.MaxBackups, node.MaxAge
	}
	return common.NewLogger(common.LogConfig{
		Level:      l.Level,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	})
}

func directoryConfig(cc *config.Configuration, lg *zap.SugaredLogger) directory.ServerConfig {
	d := cc.Directory
	return directory.ServerConfig{
		Host:        d.Host,
		ServicePort: d.ServicePort,
		LeasePort:   d.LeasePort,
		StatusAddr:  d.StatusAddr,
		LeasePeriod: d.LeasePeriod.Duration,
		GracePeriod: d.GracePeriod.Duration,
		Logger:      lg,
	}
}

func storageConfig(s *config.Storage, lg *zap.SugaredLogger) storage.ServerConfig {
	return storage.ServerConfig{
		Host:             s.Host,
		ServicePort:      s.ServicePort,
		ManagementPort:   s.ManagementPort,
		NotificationPort: s.NotificationPort,
		ChainPort:        s.ChainPort,
		NumBlocks:        s.NumBlocks,
		Capacity:         int64(s.Capacity),
		ThresholdHi:      s.ThresholdHi,
		ThresholdLo:      s.ThresholdLo,
		StatusAddr:       s.StatusAddr,
		Logger:           lg.With("storage", s.Uuid),
	}
}

// ResolveUuid falls back to $EKV_UUID when uuid is negative.
func ResolveUuid(uuid int64) (int64, error) {
	if uuid >= 0 {
		return uuid, nil
	}
	id, ok := os.LookupEnv(UuidEnv)
	if !ok {
		return 0, errors.Errorf("no storage uuid given and %s is unset", UuidEnv)
	}
	xid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s is invalid", UuidEnv)
	}
	return xid, nil
}
