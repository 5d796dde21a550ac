package directory

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ekv/internal/common"
	xrpc "ekv/internal/common/rpc"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type ServerConfig struct {
	Host        string
	ServicePort int
	LeasePort   int
	StatusAddr  string // prometheus endpoint, optional
	LeasePeriod time.Duration
	GracePeriod time.Duration
	Logger      *zap.SugaredLogger
}

func (cfg *ServerConfig) defaultConfig() {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.LeasePeriod <= 0 {
		cfg.LeasePeriod = common.DefaultLeasePeriod
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = common.DefaultGracePeriod
	}
}

// DirectoryServer serves the tree on its service port and leases on its lease port.
type DirectoryServer struct {
	cfg   ServerConfig
	tree  *DirectoryTree
	lease *LeaseExpiryWorker
	lg    *zap.SugaredLogger

	mu      sync.Mutex
	servers []*grpc.Server
	status  *http.Server
	once    sync.Once
}

// NewDirectoryServer builds an empty tree managing blocks through storage.
func NewDirectoryServer(cfg ServerConfig, storage StorageOps) *DirectoryServer {
	cfg.defaultConfig()
	lg := common.OrNop(cfg.Logger)
	tree := NewDirectoryTree(NewBlockAllocator(), storage, lg)
	return &DirectoryServer{
		cfg:   cfg,
		tree:  tree,
		lease: NewLeaseExpiryWorker(tree, cfg.LeasePeriod, cfg.GracePeriod, lg),
		lg:    lg,
	}
}

func (d *DirectoryServer) Tree() *DirectoryTree {
	return d.tree
}

func (d *DirectoryServer) LeaseWorker() *LeaseExpiryWorker {
	return d.lease
}

func (d *DirectoryServer) ServiceAddr() types.Addr {
	return types.Addr(net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.ServicePort)))
}

func (d *DirectoryServer) LeaseAddr() types.Addr {
	return types.Addr(net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.LeasePort)))
}

func (d *DirectoryServer) Serve() error {
	endpoints := []struct {
		addr types.Addr
		name string
		rcvr any
	}{
		{d.ServiceAddr(), "Directory", &directoryService{d.tree}},
		{d.LeaseAddr(), "Lease", &leaseService{d.tree, d.lease}},
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var listeners []net.Listener
	for _, ep := range endpoints {
		l, err := net.Listen("tcp", string(ep.addr))
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return errors.Wrapf(err, "listen %s endpoint", ep.name)
		}
		listeners = append(listeners, l)
		srv := xrpc.NewServer(xrpc.ServeWithLogger(d.lg))
		xrpc.MustRegister(srv, ep.name, ep.rcvr)
		d.servers = append(d.servers, srv)
	}
	for i, srv := range d.servers {
		go xrpc.NewRpcAndServe(srv, listeners[i], d.lg)
	}

	if d.cfg.StatusAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.tree.metrics.handler())
		d.status = &http.Server{Addr: d.cfg.StatusAddr, Handler: mux}
		go func() {
			if err := d.status.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.lg.Warnf("status server exit %v", err)
			}
		}()
	}
	d.lease.Start()
	d.lg.Infof("directory serving on %v, leases on %v", d.ServiceAddr(), d.LeaseAddr())
	return nil
}

func (d *DirectoryServer) Stop() {
	d.once.Do(func() {
		d.lease.Stop()
		d.mu.Lock()
		for _, srv := range d.servers {
			srv.Stop()
		}
		if d.status != nil {
			d.status.Close()
		}
		d.mu.Unlock()
		d.lg.Infof("directory stopped")
	})
}
