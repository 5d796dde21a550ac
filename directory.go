package ekv

import (
	"ekv/config"
	"ekv/internal/client"
	"ekv/internal/directory"
)

// NewDirectory starts the directory server of cc. Blocks are driven over rpc
// and arrive as the storage servers register.
func NewDirectory(cc *config.Configuration) (*directory.DirectoryServer, error) {
	lg, err := newLogger(cc.Log, cc.Directory.Log)
	if err != nil {
		return nil, err
	}
	d := directory.NewDirectoryServer(directoryConfig(cc, lg), client.NewStorageClient(client.WithLogger(lg)))
	if err := d.Serve(); err != nil {
		return nil, err
	}
	return d, nil
}
