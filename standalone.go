package ekv

import (
	"ekv/config"
	"ekv/internal/directory"
	"ekv/internal/storage"
)

// Standalone runs the directory and every storage server of a configuration
// in one process. Chains and the directory reach the blocks through method
// calls, while all the rpc endpoints stay open for clients.
type Standalone struct {
	Directory *directory.DirectoryServer
	Cluster   *storage.LocalCluster
}

func NewStandalone(cc *config.Configuration) (*Standalone, error) {
	lg, err := newLogger(cc.Log, cc.Directory.Log)
	if err != nil {
		return nil, err
	}
	sa := &Standalone{Cluster: storage.NewLocalCluster()}
	for i := range cc.Storage {
		s := sa.Cluster.AddServer(storageConfig(&cc.Storage[i], lg))
		if err := s.Serve(); err != nil {
			sa.Cluster.Stop()
			return nil, err
		}
	}

	sa.Directory = directory.NewDirectoryServer(directoryConfig(cc, lg), sa.Cluster)
	tree := sa.Directory.Tree()
	tree.AddBlocks(sa.Cluster.Blocks())
	sa.Cluster.SetRebalancer(tree)
	if err := sa.Directory.Serve(); err != nil {
		sa.Cluster.Stop()
		return nil, err
	}
	lg.Infof("standalone cluster up, %d storage servers, %d blocks", len(cc.Storage), tree.Allocator().NumTotal())
	return sa, nil
}

func (sa *Standalone) Stop() {
	sa.Directory.Stop()
	sa.Cluster.Stop()
}
