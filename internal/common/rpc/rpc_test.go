package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"ekv/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type EchoArg struct {
	Msg string
}

type EchoReply struct {
	Msg   string
	Count int
}

type echoService struct{}

func (e *echoService) RPCEcho(ctx context.Context, args *EchoArg, reply *EchoReply) error {
	reply.Msg = args.Msg
	reply.Count = len(args.Msg)
	return nil
}

func (e *echoService) RPCFail(ctx context.Context, args *EchoArg, reply *types.Ack) error {
	return errors.Wrapf(types.ErrTypeMismatch, "%s is a file", args.Msg)
}

func (e *echoService) RPCPlain(ctx context.Context, args *EchoArg, reply *types.Ack) error {
	return errors.New("plain failure")
}

func (e *echoService) Helper() {}

type nothing struct{}

func (nothing) Serve() {}

func startEcho(t *testing.T) types.Addr {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer()
	MustRegister(srv, "Echo", &echoService{})
	go NewRpcAndServe(srv, l, nil)
	t.Cleanup(srv.Stop)
	return types.Addr(l.Addr().String())
}

func TestCall(t *testing.T) {
	addr := startEcho(t)

	var reply EchoReply
	require.NoError(t, Call(addr, "Echo.RPCEcho", &EchoArg{Msg: "hello"}, &reply))
	assert.Equal(t, "hello", reply.Msg)
	assert.Equal(t, 5, reply.Count)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var again EchoReply
	require.NoError(t, CallContext(ctx, addr, "Echo.RPCEcho", &EchoArg{Msg: "hi"}, &again))
	assert.Equal(t, "hi", again.Msg)
}

func TestCallErrors(t *testing.T) {
	addr := startEcho(t)

	err := Call(addr, "Echo.RPCFail", &EchoArg{Msg: "/a/b"}, &types.Ack{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "/a/b is a file")

	err = Call(addr, "Echo.RPCPlain", &EchoArg{}, &types.Ack{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plain failure")

	err = Call(addr, "Echo.RPCMissing", &EchoArg{}, &types.Ack{})
	assert.Error(t, err)
}

func TestCallDeadPeer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := types.Addr(l.Addr().String())
	l.Close()

	err = Call(addr, "Echo.RPCEcho", &EchoArg{}, &EchoReply{}, CallWithTimeOut(time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDialHup) || errors.Is(err, types.ErrTimeOut), err.Error())
	Close(addr)
}

func TestRegisterRejectsEmpty(t *testing.T) {
	srv := NewServer()
	assert.Error(t, Register(srv, "Nothing", nothing{}))
}
