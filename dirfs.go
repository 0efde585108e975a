package binderfs

import (
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// DirFS is an absfs.FileSystem rooted at an OS directory. Paths are slash
// separated and always resolved inside the root.
type DirFS struct {
	root string
	cwd  string
}

var _ absfs.FileSystem = (*DirFS)(nil)

// NewDirFS returns a filesystem rooted at root, which must be an existing directory
func NewDirFS(root string) (*DirFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, wrapFSError("open", root, err)
	}
	if !info.IsDir() {
		return nil, NewValidationError("root", root, "not a directory")
	}
	return &DirFS{root: abs, cwd: "/"}, nil
}

// Root returns the OS directory backing the filesystem
func (fs *DirFS) Root() string {
	return fs.root
}

func (fs *DirFS) resolve(name string) string {
	if !path.IsAbs(name) {
		name = path.Join(fs.cwd, name)
	}
	return filepath.Join(fs.root, filepath.FromSlash(path.Clean("/"+name)))
}

func (fs *DirFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	p := fs.resolve(name)
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(p, flag, perm)
}

func (fs *DirFS) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(fs.resolve(name), perm)
}

func (fs *DirFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(fs.resolve(name), perm)
}

func (fs *DirFS) Remove(name string) error {
	return os.Remove(fs.resolve(name))
}

func (fs *DirFS) RemoveAll(name string) error {
	return os.RemoveAll(fs.resolve(name))
}

func (fs *DirFS) Rename(oldpath, newpath string) error {
	return os.Rename(fs.resolve(oldpath), fs.resolve(newpath))
}

func (fs *DirFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(fs.resolve(name))
}

func (fs *DirFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(fs.resolve(name), mode)
}

func (fs *DirFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(fs.resolve(name), atime, mtime)
}

func (fs *DirFS) Chown(name string, uid, gid int) error {
	return os.Chown(fs.resolve(name), uid, gid)
}

func (fs *DirFS) Separator() uint8 {
	return '/'
}

func (fs *DirFS) ListSeparator() uint8 {
	return ':'
}

func (fs *DirFS) Chdir(dir string) error {
	info, err := fs.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "chdir", Path: dir, Err: os.ErrInvalid}
	}
	if !path.IsAbs(dir) {
		dir = path.Join(fs.cwd, dir)
	}
	fs.cwd = path.Clean(dir)
	return nil
}

func (fs *DirFS) Getwd() (string, error) {
	return fs.cwd, nil
}

func (fs *DirFS) TempDir() string {
	return "/tmp"
}

func (fs *DirFS) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *DirFS) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *DirFS) Truncate(name string, size int64) error {
	return os.Truncate(fs.resolve(name), size)
}
