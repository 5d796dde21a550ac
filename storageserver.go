package ekv

import (
	"ekv/config"
	"ekv/internal/client"
	"ekv/internal/storage"
	"ekv/types"
)

// NewStorageServer starts storage node uuid of cc. Its blocks register with
// the directory and ask it for splits and merges over rpc.
func NewStorageServer(cc *config.Configuration, uuid int64) (*storage.StorageServer, error) {
	uuid, err := ResolveUuid(uuid)
	if err != nil {
		return nil, err
	}
	node, err := cc.StorageNode(uuid)
	if err != nil {
		return nil, err
	}
	lg, err := newLogger(cc.Log, node.Log)
	if err != nil {
		return nil, err
	}
	cfg := storageConfig(node, lg)
	cfg.Directory = types.Addr(cc.Directory.ServiceAddr())

	s := storage.NewStorageServer(cfg, nil)
	s.SetRebalancer(client.NewDirectoryClient(cfg.Directory, types.Addr(cc.Directory.LeaseAddr()), client.WithLogger(lg)))
	if err := s.Serve(); err != nil {
		return nil, err
	}
	return s, nil
}
