package storage

import (
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"ekv/internal/common"
	xrpc "ekv/internal/common/rpc"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type ServerConfig struct {
	Host             string
	ServicePort      int
	ManagementPort   int
	NotificationPort int
	ChainPort        int
	NumBlocks        int
	Capacity         int64
	ThresholdHi      float64
	ThresholdLo      float64
	StatusAddr       string     // prometheus endpoint, optional
	Directory        types.Addr // blocks are registered here when set
	Logger           *zap.SugaredLogger
}

func (cfg *ServerConfig) defaultConfig() {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.NumBlocks <= 0 {
		cfg.NumBlocks = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = common.DefaultCapacity
	}
	if cfg.ThresholdHi <= 0 {
		cfg.ThresholdHi = common.DefaultThresholdHi
	}
	if cfg.ThresholdLo <= 0 {
		cfg.ThresholdLo = common.DefaultThresholdLo
	}
}

// StorageServer hosts a fixed set of blocks behind four rpc endpoints.
type StorageServer struct {
	cfg     ServerConfig
	blocks  map[int32]*ChainModule
	ids     []types.BlockID
	metrics *storageMetrics
	lg      *zap.SugaredLogger

	mu       sync.Mutex
	servers  []*grpc.Server
	status   *http.Server
	dead     atomic.Bool
	shutdown chan struct{}
	once     sync.Once
}

// NewStorageServer creates the blocks of a server; nothing listens until Serve.
// A nil linker reaches other blocks over rpc.
func NewStorageServer(cfg ServerConfig, linker Linker) *StorageServer {
	cfg.defaultConfig()
	if linker == nil {
		linker = RPCLinker{}
	}
	s := &StorageServer{
		cfg:      cfg,
		blocks:   make(map[int32]*ChainModule, cfg.NumBlocks),
		lg:       common.OrNop(cfg.Logger),
		shutdown: make(chan struct{}),
	}
	proto := s.blockID(0)
	s.metrics = newStorageMetrics(proto.Server())
	for i := 0; i < cfg.NumBlocks; i++ {
		id := s.blockID(int32(i))
		s.blocks[id.ID] = NewChainModule(id, cfg.Capacity, cfg.ThresholdHi, cfg.ThresholdLo, linker, s.metrics, s.lg)
		s.ids = append(s.ids, id)
	}
	return s
}

// MustNewAndServe starts a server talking to its peers over rpc.
func MustNewAndServe(cfg ServerConfig) *StorageServer {
	s := NewStorageServer(cfg, nil)
	if err := s.Serve(); err != nil {
		panic(err)
	}
	return s
}

func (s *StorageServer) blockID(id int32) types.BlockID {
	return types.BlockID{
		Host:             s.cfg.Host,
		ServicePort:      s.cfg.ServicePort,
		ManagementPort:   s.cfg.ManagementPort,
		NotificationPort: s.cfg.NotificationPort,
		ChainPort:        s.cfg.ChainPort,
		ID:               id,
	}
}

// Name identifies the server the way types.BlockID.Server does.
func (s *StorageServer) Name() string {
	return s.blockID(0).Server()
}

func (s *StorageServer) BlockIDs() []types.BlockID {
	return append([]types.BlockID(nil), s.ids...)
}

func (s *StorageServer) Block(id int32) (*ChainModule, error) {
	if s.dead.Load() {
		return nil, errors.Wrapf(types.ErrDialHup, "server %v is down", s.Name())
	}
	b, ok := s.blocks[id]
	if !ok {
		return nil, errors.Wrapf(types.ErrBlockNotFound, "block %d on %v", id, s.Name())
	}
	return b, nil
}

func (s *StorageServer) SetRebalancer(rb Rebalancer) {
	for _, b := range s.blocks {
		b.SetRebalancer(rb)
	}
}

func (s *StorageServer) Alive() bool {
	return !s.dead.Load()
}

// Serve opens the data, management, notification and chain endpoints and
// registers the blocks with the directory.
func (s *StorageServer) Serve() error {
	endpoints := []struct {
		port int
		name string
		rcvr any
	}{
		{s.cfg.ServicePort, "Storage", &dataService{s}},
		{s.cfg.ManagementPort, "Management", &managementService{s}},
		{s.cfg.NotificationPort, "Notification", &notificationService{s}},
		{s.cfg.ChainPort, "Chain", &chainService{s}},
	}
	listeners := make([]net.Listener, 0, len(endpoints))
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range endpoints {
		l, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(ep.port)))
		if err != nil {
			closeAll()
			return errors.Wrapf(err, "listen %s endpoint", ep.name)
		}
		listeners = append(listeners, l)
		srv := xrpc.NewServer(xrpc.ServeWithLogger(s.lg))
		if err := xrpc.Register(srv, ep.name, ep.rcvr); err != nil {
			closeAll()
			return err
		}
		s.servers = append(s.servers, srv)
	}
	for i, srv := range s.servers {
		go xrpc.NewRpcAndServe(srv, listeners[i], s.lg)
	}

	if s.cfg.StatusAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.handler())
		s.status = &http.Server{Addr: s.cfg.StatusAddr, Handler: mux}
		go func() {
			if err := s.status.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.lg.Warnf("status server exit %v", err)
			}
		}()
	}
	if s.cfg.Directory != "" {
		go s.register()
	}
	s.lg.Infof("storage server %v serving %d blocks", s.Name(), len(s.blocks))
	return nil
}

// register retries until the directory accepts the blocks.
func (s *StorageServer) register() {
	ticker := time.NewTicker(common.RegisterRetryInterval)
	defer ticker.Stop()
	for {
		err := xrpc.Call(s.cfg.Directory, "Directory.RPCAddBlocks", &types.BlocksArg{Blocks: s.BlockIDs()}, &types.Ack{})
		if err == nil {
			s.lg.Infof("registered %d blocks with directory %v", len(s.ids), s.cfg.Directory)
			return
		}
		s.lg.Debugf("register with directory %v failed %v, retrying", s.cfg.Directory, err)
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
		}
	}
}

func (s *StorageServer) Stop() {
	s.once.Do(func() {
		s.dead.Store(true)
		close(s.shutdown)
		s.mu.Lock()
		for _, srv := range s.servers {
			srv.Stop()
		}
		if s.status != nil {
			s.status.Close()
		}
		s.mu.Unlock()
		for _, b := range s.blocks {
			b.Stop()
		}
		s.lg.Infof("storage server %v stopped", s.Name())
	})
}

// Stats summarizes the resident blocks, ordered by id.
func (s *StorageServer) Stats() []BlockStat {
	stats := make([]BlockStat, 0, len(s.blocks))
	for _, id := range s.ids {
		b := s.blocks[id.ID]
		stats = append(stats, BlockStat{
			ID:    id,
			Path:  b.Path(),
			Slots: b.SlotRange(),
			Role:  b.Role(),
			State: b.State(),
			Keys:  b.NumKeys(),
			Bytes: b.StorageSize(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID.ID < stats[j].ID.ID })
	return stats
}

type BlockStat struct {
	ID    types.BlockID
	Path  string
	Slots types.SlotRange
	Role  types.ChainRole
	State types.BlockState
	Keys  int
	Bytes int64
}
