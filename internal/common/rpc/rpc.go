package rpc

import (
	"context"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

type ClientEnd struct {
	addr types.Addr
	mu   sync.Mutex
	cc   *grpc.ClientConn
}

var mu sync.RWMutex
var rpcPool = make(map[types.Addr]*ClientEnd)

type CallOption = func(*RpcClientConfig)
type ServeOption = func(*RpcServerConfig)

type RpcServerConfig struct {
	MaxMsgSize int
	Logger     *zap.SugaredLogger
}

type RpcClientConfig struct {
	CallTimeOut time.Duration
}

func (rc *RpcClientConfig) defaultConfig() {
	rc.CallTimeOut = common.DefaultCallTimeout
}

func (rc *RpcServerConfig) defaultConfig() {
	rc.MaxMsgSize = 64 * 1024 * 1024
}

func CallWithTimeOut(t time.Duration) CallOption {
	return func(c *RpcClientConfig) {
		c.CallTimeOut = t
	}
}

func ServeWithMaxMsgSize(n int) ServeOption {
	return func(c *RpcServerConfig) {
		c.MaxMsgSize = n
	}
}

func ServeWithLogger(lg *zap.SugaredLogger) ServeOption {
	return func(c *RpcServerConfig) {
		c.Logger = lg
	}
}

func NewClientEnd(addr types.Addr) *ClientEnd {
	return &ClientEnd{addr: addr}
}

func (ce *ClientEnd) EndPoint() string {
	return string(ce.addr)
}

func (ce *ClientEnd) Close() {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.cc != nil {
		ce.cc.Close()
		ce.cc = nil
	}
}

func (ce *ClientEnd) dial() (*grpc.ClientConn, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.cc != nil {
		return ce.cc, nil
	}
	cc, err := grpc.Dial(string(ce.addr),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(gobCodec{})),
	)
	if err != nil {
		return nil, err
	}
	ce.cc = cc
	return cc, nil
}

// Call invokes service ("Service.RPCMethod") on the peer.
func (ce *ClientEnd) Call(ctx context.Context, service string, args any, reply any) error {
	cc, err := ce.dial()
	if err != nil {
		return errors.Wrapf(types.ErrDialHup, "dial %v: %v", ce.addr, err)
	}
	return fromStatus(cc.Invoke(ctx, methodName(service), args, reply))
}

func methodName(service string) string {
	return "/" + strings.Replace(service, ".", "/", 1)
}

func Call(server types.Addr, service string, args any, reply any, opts ...CallOption) error {
	cf := RpcClientConfig{}
	cf.defaultConfig()
	for _, opt := range opts {
		opt(&cf)
	}
	ctx := context.Background()
	if cf.CallTimeOut > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cf.CallTimeOut)
		defer cancel()
	}
	return CallContext(ctx, server, service, args, reply)
}

func CallContext(ctx context.Context, server types.Addr, service string, args any, reply any) error {
	return findClientEnd(server).Call(ctx, service, args, reply)
}

// Close drops the pooled connection to server.
func Close(server types.Addr) {
	mu.Lock()
	ce, ok := rpcPool[server]
	delete(rpcPool, server)
	mu.Unlock()
	if ok {
		ce.Close()
	}
}

func findClientEnd(server types.Addr) *ClientEnd {
	mu.RLock()
	ce, ok := rpcPool[server]
	mu.RUnlock()
	if ok {
		return ce
	}
	mu.Lock()
	defer mu.Unlock()
	if ce, ok = rpcPool[server]; ok {
		return ce
	}
	ce = NewClientEnd(server)
	rpcPool[server] = ce
	return ce
}

// NewServer returns a grpc server speaking the gob codec.
func NewServer(opts ...ServeOption) *grpc.Server {
	cf := RpcServerConfig{}
	cf.defaultConfig()
	for _, opt := range opts {
		opt(&cf)
	}
	sopts := []grpc.ServerOption{
		grpc.ForceServerCodec(gobCodec{}),
		grpc.MaxRecvMsgSize(cf.MaxMsgSize),
		grpc.MaxSendMsgSize(cf.MaxMsgSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if cf.Logger != nil {
		lg := cf.Logger
		sopts = append(sopts, grpc.UnaryInterceptor(func(ctx context.Context, req any,
			info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			resp, err := handler(ctx, req)
			if err != nil {
				lg.Debugw("rpc failed", "method", info.FullMethod, "err", err)
			}
			return resp, err
		}))
	}
	return grpc.NewServer(sopts...)
}

func NewRpcAndServe(srv *grpc.Server, l net.Listener, lg *zap.SugaredLogger) {
	lg = common.OrNop(lg)
	lg.Infof("rpc service listen on %v", l.Addr().String())
	if err := srv.Serve(l); err != nil {
		lg.Warnf("rpc service on %v exit %v", l.Addr().String(), err)
	}
}

var (
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Register exposes every method of rcvr shaped
//
//	func (r *T) RPCXxx(ctx context.Context, args *Arg, reply *Reply) error
//
// as the grpc method /name/RPCXxx.
func Register(s *grpc.Server, name string, rcvr any) error {
	v := reflect.ValueOf(rcvr)
	t := v.Type()
	desc := &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
	}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "RPC") {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 4 || mt.In(1) != typeOfContext ||
			mt.In(2).Kind() != reflect.Ptr || mt.In(3).Kind() != reflect.Ptr ||
			mt.NumOut() != 1 || mt.Out(0) != typeOfError {
			continue
		}
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.Name,
			Handler:    newHandler(v.Method(i), mt.In(2).Elem(), mt.In(3).Elem(), "/"+name+"/"+m.Name),
		})
	}
	if len(desc.Methods) == 0 {
		return errors.Errorf("rpc: type %v has no suitable methods", t)
	}
	s.RegisterService(desc, rcvr)
	return nil
}

func MustRegister(s *grpc.Server, name string, rcvr any) {
	if err := Register(s, name, rcvr); err != nil {
		panic(err)
	}
}

func newHandler(fn reflect.Value, argType, replyType reflect.Type, fullMethod string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		arg := reflect.New(argType)
		if err := dec(arg.Interface()); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			reply := reflect.New(replyType)
			out := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(req), reply})
			if err, _ := out[0].Interface().(error); err != nil {
				return nil, toStatus(err)
			}
			return reply.Interface(), nil
		}
		if interceptor == nil {
			return call(ctx, arg.Interface())
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, arg.Interface(), info, call)
	}
}
