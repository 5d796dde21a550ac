package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type node struct {
	sync.RWMutex
	name      string
	isDir     bool
	perms     types.Perms
	lastWrite atomic.Int64

	// dir property
	children map[string]*node

	// file property
	dstatus types.DataStatus
}

func newDirNode(name string) *node {
	n := &node{
		name:     name,
		isDir:    true,
		perms:    types.PermDefault,
		children: make(map[string]*node),
	}
	n.lastWrite.Store(common.NowMs())
	return n
}

func newFileNode(name string, ds types.DataStatus) *node {
	n := &node{
		name:    name,
		perms:   types.PermDefault,
		dstatus: ds,
	}
	n.lastWrite.Store(common.NowMs())
	return n
}

func (n *node) status() types.FileStatus {
	t := types.TypeRegular
	if n.isDir {
		t = types.TypeDirectory
	}
	return types.FileStatus{
		Type:          t,
		Perms:         n.perms,
		LastWriteTime: n.lastWrite.Load(),
	}
}

func (n *node) sortedChildren() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pathLock holds read locks from the root down to a node, and a read or
// write lock on the node itself. Every operation keeps its ancestors read
// locked, so a write lock on a node excludes everyone from its subtree.
type pathLock struct {
	nodes []*node
	write bool
}

func (pl *pathLock) node() *node {
	return pl.nodes[len(pl.nodes)-1]
}

func (pl *pathLock) unlock() {
	last := len(pl.nodes) - 1
	for i := last; i >= 0; i-- {
		if i == last && pl.write {
			pl.nodes[i].Unlock()
		} else {
			pl.nodes[i].RUnlock()
		}
	}
}

func tokensPath(tokens []string) string {
	return "/" + strings.Join(tokens, "/")
}

func childPath(parent []string, name string) string {
	return common.CleanPath(tokensPath(parent) + "/" + name)
}

// DirectoryTree maps paths to files and their replica chains.
type DirectoryTree struct {
	root    *node
	alloc   *BlockAllocator
	storage StorageOps
	metrics *directoryMetrics
	lg      *zap.SugaredLogger
}

func NewDirectoryTree(alloc *BlockAllocator, storage StorageOps, lg *zap.SugaredLogger) *DirectoryTree {
	t := &DirectoryTree{
		root:    newDirNode("/"),
		alloc:   alloc,
		storage: storage,
		lg:      common.OrNop(lg),
	}
	t.metrics = newDirectoryMetrics(alloc)
	return t
}

func (t *DirectoryTree) Allocator() *BlockAllocator {
	return t.alloc
}

func (t *DirectoryTree) lockTokens(tokens []string, write bool) (*pathLock, error) {
	pl := &pathLock{write: write}
	cur := t.root
	for i := 0; ; i++ {
		last := i == len(tokens)
		if last && write {
			cur.Lock()
		} else {
			cur.RLock()
		}
		pl.nodes = append(pl.nodes, cur)
		if last {
			return pl, nil
		}
		if !cur.isDir {
			pl.write = false
			pl.unlock()
			return nil, errors.Wrapf(types.ErrTypeMismatch, "%s is a file", tokensPath(tokens[:i]))
		}
		child, ok := cur.children[tokens[i]]
		if !ok {
			pl.write = false
			pl.unlock()
			return nil, errors.Wrapf(types.ErrPathNotFound, "%s", tokensPath(tokens[:i+1]))
		}
		cur = child
	}
}

func (t *DirectoryTree) lock(path string, write bool) (*pathLock, error) {
	return t.lockTokens(common.PathTokens(path), write)
}

func (t *DirectoryTree) lockDir(tokens []string, write bool) (*pathLock, error) {
	pl, err := t.lockTokens(tokens, write)
	if err != nil {
		return nil, err
	}
	if !pl.node().isDir {
		pl.unlock()
		return nil, errors.Wrapf(types.ErrTypeMismatch, "%s is a file", tokensPath(tokens))
	}
	return pl, nil
}

func (t *DirectoryTree) lockFile(path string, write bool) (*pathLock, error) {
	pl, err := t.lock(path, write)
	if err != nil {
		return nil, err
	}
	if pl.node().isDir {
		pl.unlock()
		return nil, errors.Wrapf(types.ErrTypeMismatch, "%s is a directory", common.CleanPath(path))
	}
	return pl, nil
}

// relock write locks file node n again after it was unlocked. n may have
// been renamed meanwhile, so it is searched from the root; the current path
// is returned with the lock.
func (t *DirectoryTree) relock(n *node) (*pathLock, string, error) {
	for i := 0; i < common.RelockRetries; i++ {
		tokens, ok := t.find(n)
		if !ok {
			break
		}
		pl, err := t.lockTokens(tokens, true)
		if err == nil && pl.node() == n {
			return pl, tokensPath(tokens), nil
		}
		if err == nil {
			pl.unlock()
		}
	}
	return nil, "", errors.Wrap(types.ErrPathNotFound, "file detached")
}

// find returns the tokens of n's current path. Ancestors stay read locked
// while their subtree is searched, the same order lockTokens takes.
func (t *DirectoryTree) find(n *node) ([]string, bool) {
	return findIn(t.root, n, nil)
}

func findIn(dir, n *node, prefix []string) ([]string, bool) {
	dir.RLock()
	defer dir.RUnlock()
	for name, child := range dir.children {
		tokens := append(append([]string(nil), prefix...), name)
		if child == n {
			return tokens, true
		}
		if child.isDir {
			if found, ok := findIn(child, n, tokens); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// CreateDirectory creates path whose parent must exist. An existing directory is left alone.
func (t *DirectoryTree) CreateDirectory(path string) error {
	parent, name := common.PartionPath(path)
	if name == "" {
		return nil
	}
	return t.createDir(parent, name)
}

func (t *DirectoryTree) createDir(parent []string, name string) error {
	pl, err := t.lockDir(parent, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	dir := pl.node()
	if child, ok := dir.children[name]; ok {
		if !child.isDir {
			return errors.Wrapf(types.ErrTypeMismatch, "%s is a file", childPath(parent, name))
		}
		return nil
	}
	dir.children[name] = newDirNode(name)
	t.lg.Debugf("created directory %s", childPath(parent, name))
	return nil
}

// CreateDirectories creates path and every missing ancestor.
func (t *DirectoryTree) CreateDirectories(path string) error {
	tokens := common.PathTokens(path)
	for i := range tokens {
		if err := t.createDir(tokens[:i], tokens[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *DirectoryTree) Exists(path string) bool {
	pl, err := t.lock(path, false)
	if err != nil {
		return false
	}
	pl.unlock()
	return true
}

func (t *DirectoryTree) Status(path string) (types.FileStatus, error) {
	pl, err := t.lock(path, false)
	if err != nil {
		return types.FileStatus{}, err
	}
	defer pl.unlock()
	return pl.node().status(), nil
}

func (t *DirectoryTree) DStatus(path string) (types.DataStatus, error) {
	pl, err := t.lockFile(path, false)
	if err != nil {
		return types.DataStatus{}, err
	}
	defer pl.unlock()
	return pl.node().dstatus.Clone(), nil
}

// Open returns the data status of an existing file.
func (t *DirectoryTree) Open(path string) (types.DataStatus, error) {
	return t.DStatus(path)
}

func (t *DirectoryTree) IsRegularFile(path string) (bool, error) {
	st, err := t.Status(path)
	return st.Type == types.TypeRegular, err
}

func (t *DirectoryTree) IsDirectory(path string) (bool, error) {
	st, err := t.Status(path)
	return st.Type == types.TypeDirectory, err
}

func (t *DirectoryTree) LastWriteTime(path string) (int64, error) {
	st, err := t.Status(path)
	return st.LastWriteTime, err
}

func (t *DirectoryTree) Permissions(path string) (types.Perms, error) {
	st, err := t.Status(path)
	return st.Perms, err
}

func (t *DirectoryTree) SetPermissions(path string, perms types.Perms, opts types.PermOptions) error {
	pl, err := t.lock(path, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	n := pl.node()
	perms &= types.PermMask
	switch opts {
	case types.PermReplace:
		n.perms = perms
	case types.PermAdd:
		n.perms |= perms
	case types.PermRemove:
		n.perms &^= perms
	default:
		return errors.Wrapf(types.ErrInvalidArgument, "perm option %d", opts)
	}
	t.lg.Debugf("permissions of %s set to %v", path, n.perms)
	return nil
}

// DirectoryEntries lists the children of path ordered by name.
func (t *DirectoryTree) DirectoryEntries(path string) ([]types.DirectoryEntry, error) {
	pl, err := t.lockDir(common.PathTokens(path), false)
	if err != nil {
		return nil, err
	}
	defer pl.unlock()
	dir := pl.node()
	entries := make([]types.DirectoryEntry, 0, len(dir.children))
	for _, name := range dir.sortedChildren() {
		child := dir.children[name]
		child.RLock()
		entries = append(entries, types.DirectoryEntry{Name: name, Status: child.status()})
		child.RUnlock()
	}
	return entries, nil
}

// RecursiveDirectoryEntries lists every descendant of path, named relative to it.
func (t *DirectoryTree) RecursiveDirectoryEntries(path string) ([]types.DirectoryEntry, error) {
	pl, err := t.lockDir(common.PathTokens(path), false)
	if err != nil {
		return nil, err
	}
	defer pl.unlock()
	var entries []types.DirectoryEntry
	var walk func(dir *node, prefix string)
	walk = func(dir *node, prefix string) {
		for _, name := range dir.sortedChildren() {
			child := dir.children[name]
			child.RLock()
			entries = append(entries, types.DirectoryEntry{Name: prefix + name, Status: child.status()})
			if child.isDir {
				walk(child, prefix+name+"/")
			}
			child.RUnlock()
		}
	}
	walk(pl.node(), "")
	return entries, nil
}

// Touch refreshes the timestamps of path, its ancestors and all its descendants.
// Files in their grace period return to memory.
func (t *DirectoryTree) Touch(path string) error {
	pl, err := t.lock(path, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	now := common.NowMs()
	for _, n := range pl.nodes[1:] {
		n.lastWrite.Store(now)
	}
	var touch func(n *node)
	touch = func(n *node) {
		n.lastWrite.Store(now)
		if !n.isDir {
			if n.dstatus.Mode == types.InMemoryGrace {
				n.dstatus.Mode = types.InMemory
			}
			return
		}
		for _, child := range n.children {
			touch(child)
		}
	}
	touch(pl.node())
	return nil
}

// Remove deletes a file or an empty directory.
func (t *DirectoryTree) Remove(ctx context.Context, path string) error {
	parent, name := common.PartionPath(path)
	pl, err := t.lockDir(parent, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	dir := pl.node()
	if name == "" {
		if len(dir.children) > 0 {
			return errors.Wrap(types.ErrDirNotEmpty, "/")
		}
		return nil
	}
	child, ok := dir.children[name]
	if !ok {
		return errors.Wrapf(types.ErrPathNotFound, "%s", path)
	}
	if child.isDir && len(child.children) > 0 {
		return errors.Wrapf(types.ErrDirNotEmpty, "%s", path)
	}
	delete(dir.children, name)
	t.clearStorage(ctx, child)
	t.lg.Infof("removed %s", path)
	return nil
}

// RemoveAll deletes path and everything below it.
func (t *DirectoryTree) RemoveAll(ctx context.Context, path string) error {
	parent, name := common.PartionPath(path)
	pl, err := t.lockDir(parent, true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	dir := pl.node()
	if name == "" {
		for cname, child := range dir.children {
			delete(dir.children, cname)
			t.clearStorage(ctx, child)
		}
		t.lg.Infof("removed everything")
		return nil
	}
	child, ok := dir.children[name]
	if !ok {
		return errors.Wrapf(types.ErrPathNotFound, "%s", path)
	}
	delete(dir.children, name)
	t.clearStorage(ctx, child)
	t.lg.Infof("removed %s recursively", path)
	return nil
}

// clearStorage resets and frees every block below n, which must be detached
// from the tree or exclusively held.
func (t *DirectoryTree) clearStorage(ctx context.Context, n *node) {
	var blocks []types.BlockID
	var collect func(n *node)
	collect = func(n *node) {
		if n.isDir {
			for _, child := range n.children {
				collect(child)
			}
			return
		}
		for _, c := range n.dstatus.Chains {
			blocks = append(blocks, c.Blocks...)
		}
	}
	collect(n)
	t.releaseBlocks(ctx, blocks)
}

// releaseBlocks resets blocks and returns them to the allocator.
func (t *DirectoryTree) releaseBlocks(ctx context.Context, blocks []types.BlockID) {
	if len(blocks) == 0 {
		return
	}
	if err := resetBlocks(ctx, t.storage, blocks); err != nil {
		t.lg.Warnf("reset blocks %v failed %v", blocks, err)
	}
	if err := t.alloc.Free(blocks); err != nil {
		t.lg.Warnf("free blocks %v failed %v", blocks, err)
	}
}

// Rename moves oldPath to newPath. An existing file at newPath is replaced
// and its storage released; an existing directory must be empty.
func (t *DirectoryTree) Rename(ctx context.Context, oldPath, newPath string) error {
	oldPath, newPath = common.CleanPath(oldPath), common.CleanPath(newPath)
	if oldPath == newPath {
		return nil
	}
	if oldPath == "/" || newPath == "/" {
		return errors.Wrap(types.ErrInvalidArgument, "rename the root")
	}
	if common.IsSubPath(oldPath, newPath) {
		return errors.Wrapf(types.ErrInvalidArgument, "move %s under itself", oldPath)
	}
	oldParent, oldName := common.PartionPath(oldPath)
	newParent, newName := common.PartionPath(newPath)

	// write lock the deepest common ancestor of both parents
	k := 0
	for k < len(oldParent) && k < len(newParent) && oldParent[k] == newParent[k] {
		k++
	}
	pl, err := t.lockDir(oldParent[:k], true)
	if err != nil {
		return err
	}
	defer pl.unlock()
	src, err := descend(pl.node(), oldParent[:k], oldParent[k:])
	if err != nil {
		return err
	}
	dst, err := descend(pl.node(), newParent[:k], newParent[k:])
	if err != nil {
		return err
	}

	child, ok := src.children[oldName]
	if !ok {
		return errors.Wrapf(types.ErrPathNotFound, "%s", oldPath)
	}
	if existing, ok := dst.children[newName]; ok {
		switch {
		case existing.isDir && !child.isDir:
			return errors.Wrapf(types.ErrTypeMismatch, "%s is a directory", newPath)
		case !existing.isDir && child.isDir:
			return errors.Wrapf(types.ErrTypeMismatch, "%s is a file", newPath)
		case existing.isDir && len(existing.children) > 0:
			return errors.Wrapf(types.ErrDirNotEmpty, "%s", newPath)
		}
		delete(dst.children, newName)
		t.clearStorage(ctx, existing)
	}
	delete(src.children, oldName)
	child.name = newName
	dst.children[newName] = child
	t.renameStorage(ctx, child, newPath)
	t.lg.Infof("renamed %s to %s", oldPath, newPath)
	return nil
}

// descend walks from the exclusively held dir down tokens without locking.
func descend(dir *node, base, tokens []string) (*node, error) {
	cur := dir
	for i, name := range tokens {
		child, ok := cur.children[name]
		if !ok {
			return nil, errors.Wrapf(types.ErrPathNotFound, "%s", tokensPath(append(append([]string(nil), base...), tokens[:i+1]...)))
		}
		if !child.isDir {
			return nil, errors.Wrapf(types.ErrTypeMismatch, "%s is a file", tokensPath(append(append([]string(nil), base...), tokens[:i+1]...)))
		}
		cur = child
	}
	return cur, nil
}

// renameStorage tells the blocks of every file below n their new path.
func (t *DirectoryTree) renameStorage(ctx context.Context, n *node, path string) {
	if n.isDir {
		for name, child := range n.children {
			t.renameStorage(ctx, child, path+"/"+name)
		}
		return
	}
	for _, c := range n.dstatus.Chains {
		for _, b := range c.Blocks {
			if err := t.storage.SetPath(ctx, b, path); err != nil {
				t.lg.Warnf("set path of block %v to %s failed %v", b, path, err)
			}
		}
	}
}
