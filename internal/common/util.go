package common

import (
	crand "crypto/rand"
	"math/big"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PartionPath splits a cleaned absolute path into its parent components and its last name.
// The root has no parent components and an empty name.
func PartionPath(p string) ([]string, string) {
	tokens := PathTokens(p)
	if len(tokens) == 0 {
		return nil, ""
	}
	return tokens[:len(tokens)-1], tokens[len(tokens)-1]
}

// PathTokens returns the non-empty components of p.
func PathTokens(p string) []string {
	p = CleanPath(p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// CleanPath makes p absolute and removes ".", ".." and duplicate separators.
func CleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func ParentPath(p string) string {
	return path.Dir(CleanPath(p))
}

func GetFileNameWithExt(p string) string {
	_, name := PartionPath(p)
	return name
}

func JoinPath(elem ...string) string {
	return CleanPath(path.Join(elem...))
}

// IsSubPath reports whether child equals parent or lies below it.
func IsSubPath(parent, child string) bool {
	parent, child = CleanPath(parent), CleanPath(child)
	if parent == "/" || parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

func IsExist(f string) bool {
	_, err := os.Stat(f)
	return err == nil || os.IsExist(err)
}

func SplitEndPoint(endpoint string) (string, string) {
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return endpoint, ""
	}
	return endpoint[:idx], endpoint[idx+1:]
}

func Nrand() int64 {
	max := big.NewInt(int64(1) << 62)
	bigx, _ := crand.Int(crand.Reader, max)
	return bigx.Int64()
}

// NowMs is the timestamp unit of the directory tree.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

func JoinErrors(errs ...error) error {
	var (
		str []string
		err error
	)
	for _, v := range errs {
		if v == nil {
			continue
		}
		if err == nil {
			err = v
		}
		str = append(str, v.Error())
	}
	if len(str) <= 1 {
		return err
	}
	return errors.WithMessage(err, strings.Join(str[1:], ";"))
}
