package types

import (
	"github.com/pkg/errors"
)

const (
	// 系统错误码
	ErrTimeoutCode       = 501
	ErrDuplicateCode     = 503
	ErrRetryOverSeedCode = 504
	ErrDialHupCode       = 505

	// 逻辑错误
	ErrUnknownOperationCode = 402
	ErrNotFoundCode         = 405
	ErrUnReachAbleCode      = 406
	ErrPathNotFoundCode     = 407
	ErrInvalidArgumentCode  = 408
	ErrPathExistsCode       = 409
	ErrPermissionDeniedCode = 410
	ErrTypeMismatchCode     = 411
	ErrDirNotEmptyCode      = 412
	ErrNoCapacityCode       = 413
	ErrStaleOperationCode   = 414
	ErrBlockNotFoundCode    = 415
)

// sys error
var (
	ErrTimeOut       = errors.New("i/o timeout")
	ErrDuplicate     = errors.New("duplicate request")
	ErrRetryOverSeed = errors.New("too many retry")
)

// rpc error
var (
	ErrDialHup = errors.New("not found endpoint")
)

// logic error
var (
	ErrUnknownOperation = errors.New("operation not supported")
	ErrNotFound         = errors.New("not found data")
	ErrUnReachAble      = errors.New("unreachable branch")
	ErrPathNotFound     = errors.New("path not found")
	ErrInvalidArgument  = errors.New("invalid argrument")
	ErrPathExists       = errors.New("file or folder already exist")
	ErrPermissionDenied = errors.New("file perm denied")
	ErrTypeMismatch     = errors.New("file type mismatch")
	ErrDirNotEmpty      = errors.New("directory not empty")
	ErrNoCapacity       = errors.New("not enough free blocks")
	ErrStaleOperation   = errors.New("stale operation")
	ErrBlockNotFound    = errors.New("block not found")
)

// CodeError pairs a sentinel error with its numeric code.
type CodeError struct {
	Code int
	Err  error
}

var codeErrors = []CodeError{
	{ErrTimeoutCode, ErrTimeOut},
	{ErrDuplicateCode, ErrDuplicate},
	{ErrRetryOverSeedCode, ErrRetryOverSeed},
	{ErrDialHupCode, ErrDialHup},
	{ErrUnknownOperationCode, ErrUnknownOperation},
	{ErrNotFoundCode, ErrNotFound},
	{ErrUnReachAbleCode, ErrUnReachAble},
	{ErrPathNotFoundCode, ErrPathNotFound},
	{ErrInvalidArgumentCode, ErrInvalidArgument},
	{ErrPathExistsCode, ErrPathExists},
	{ErrPermissionDeniedCode, ErrPermissionDenied},
	{ErrTypeMismatchCode, ErrTypeMismatch},
	{ErrDirNotEmptyCode, ErrDirNotEmpty},
	{ErrNoCapacityCode, ErrNoCapacity},
	{ErrStaleOperationCode, ErrStaleOperation},
	{ErrBlockNotFoundCode, ErrBlockNotFound},
}

// ErrorCode returns the code of the sentinel err wraps, 0 if none.
func ErrorCode(err error) int {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.Err) {
			return ce.Code
		}
	}
	return 0
}

// ErrorOf is the inverse of ErrorCode.
func ErrorOf(code int) error {
	for _, ce := range codeErrors {
		if ce.Code == code {
			return ce.Err
		}
	}
	return nil
}

func ErrEqual(t error, tt error) bool {
	if t == nil {
		return tt == nil
	}
	return errors.Is(t, tt) || (tt != nil && t.Error() == tt.Error())
}
