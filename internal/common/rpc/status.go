package rpc

import (
	"context"
	"strconv"

	"ekv/types"

	"github.com/pkg/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "ekv"

var grpcCodes = map[int]codes.Code{
	types.ErrTimeoutCode:          codes.DeadlineExceeded,
	types.ErrDialHupCode:          codes.Unavailable,
	types.ErrUnknownOperationCode: codes.Unimplemented,
	types.ErrNotFoundCode:         codes.NotFound,
	types.ErrPathNotFoundCode:     codes.NotFound,
	types.ErrBlockNotFoundCode:    codes.NotFound,
	types.ErrInvalidArgumentCode:  codes.InvalidArgument,
	types.ErrPathExistsCode:       codes.AlreadyExists,
	types.ErrPermissionDeniedCode: codes.PermissionDenied,
	types.ErrTypeMismatchCode:     codes.FailedPrecondition,
	types.ErrDirNotEmptyCode:      codes.FailedPrecondition,
	types.ErrNoCapacityCode:       codes.ResourceExhausted,
	types.ErrStaleOperationCode:   codes.Aborted,
}

// remoteError is a sentinel restored on the calling side of an rpc.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Cause() error  { return e.cause }
func (e *remoteError) Unwrap() error { return e.cause }

func toStatus(err error) error {
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}
	code := types.ErrorCode(err)
	if code == 0 {
		return status.Error(codes.Unknown, err.Error())
	}
	gc, ok := grpcCodes[code]
	if !ok {
		gc = codes.Unknown
	}
	st := status.New(gc, err.Error())
	if ds, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: strconv.Itoa(code),
		Domain: errorDomain,
	}); derr == nil {
		st = ds
	}
	return st.Err()
}

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.Domain != errorDomain {
			continue
		}
		code, _ := strconv.Atoi(info.Reason)
		if sentinel := types.ErrorOf(code); sentinel != nil {
			return &remoteError{msg: st.Message(), cause: sentinel}
		}
	}
	switch st.Code() {
	case codes.Unavailable:
		return errors.Wrap(types.ErrDialHup, st.Message())
	case codes.DeadlineExceeded:
		return errors.Wrap(types.ErrTimeOut, st.Message())
	case codes.Canceled:
		return errors.Wrap(context.Canceled, st.Message())
	}
	return errors.New(st.Message())
}
