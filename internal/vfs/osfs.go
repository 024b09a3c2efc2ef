package vfs

import (
	"io"
	"io/fs"
	"os"
	"syscall"
)

// OS is the production FileSystem backed by the local disk.
type OS struct{}

var _ FileSystem = OS{}

func (OS) Enumerate(dir string) ([]DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (OS) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}, nil
}

func (OS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OS) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func (OS) MkdirAll(dir string, perm fs.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (OS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (OS) Remove(path string) error {
	return os.Remove(path)
}

func (OS) SameVolume(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		// a may not exist yet at this exact path; fall back to its directory.
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	sa, ok1 := fa.Sys().(*syscall.Stat_t)
	sb, ok2 := fb.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, nil
	}
	return sa.Dev == sb.Dev, nil
}

func (OS) FreeSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
