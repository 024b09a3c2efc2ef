package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mem is an in-memory FileSystem fake for tests (spec §6/§9).
type Mem struct {
	mu    sync.Mutex
	files map[string][]byte
	// volume maps a path prefix to a volume id; paths under different prefixes
	// are treated as different volumes so cross-volume move logic is exercisable.
	volumes map[string]string
	free    uint64
}

// NewMem returns an empty in-memory filesystem with the given default free space.
func NewMem(freeBytes uint64) *Mem {
	return &Mem{
		files:   make(map[string][]byte),
		volumes: make(map[string]string),
		free:    freeBytes,
	}
}

var _ FileSystem = (*Mem)(nil)

func clean(p string) string { return filepath.Clean(p) }

// WriteFile seeds content at path (test helper).
func (m *Mem) WriteFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(path)] = append([]byte(nil), content...)
}

// SetVolume assigns a volume id to every path under prefix (test helper).
func (m *Mem) SetVolume(prefix, volume string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[clean(prefix)] = volume
}

func (m *Mem) volumeOf(path string) string {
	best := ""
	bestLen := -1
	for prefix, vol := range m.volumes {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best, bestLen = vol, len(prefix)
		}
	}
	if best == "" {
		return "default"
	}
	return best
}

func (m *Mem) SetFreeSpace(b uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = b
}

func (m *Mem) Enumerate(dir string) ([]DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	seen := map[string]bool{}
	var out []DirEntry
	for p := range m.files {
		d := filepath.Dir(p)
		if d != dir {
			continue
		}
		name := filepath.Base(p)
		if !seen[name] {
			seen[name] = true
			out = append(out, DirEntry{Name: name, IsDir: false})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Mem) Stat(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = clean(path)
	content, ok := m.files[path]
	if !ok {
		return FileInfo{}, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return FileInfo{Name: filepath.Base(path), Size: int64(len(content)), ModTime: time.Unix(0, 0)}, nil
}

func (m *Mem) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = clean(path)
	content, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type memWriter struct {
	m    *Mem
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (m *Mem) Create(path string) (io.WriteCloser, error) {
	return &memWriter{m: m, path: clean(path)}, nil
}

func (m *Mem) MkdirAll(dir string, perm fs.FileMode) error { return nil }

func (m *Mem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldpath, newpath = clean(oldpath), clean(newpath)
	content, ok := m.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	m.files[newpath] = content
	delete(m.files, oldpath)
	return nil
}

func (m *Mem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = clean(path)
	if _, ok := m.files[path]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, path)
	return nil
}

func (m *Mem) SameVolume(a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumeOf(clean(a)) == m.volumeOf(clean(b)), nil
}

func (m *Mem) FreeSpace(path string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.free, nil
}
