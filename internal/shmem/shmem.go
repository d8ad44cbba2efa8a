// internal/shmem/shmem.go

// Package shmem publishes read-only byte regions under well-known names so
// every worker attaches to one copy instead of receiving its own. A region
// is a file in a shared directory mapped with mmap; the creator unlinks it
// in teardown. A run killed hard leaves its regions behind: they are
// discoverable by the name prefix and must be cleaned up by hand (accepted
// operational hazard, not silently handled).
package shmem

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Prefix namespaces every region published by this program.
const Prefix = "hazpost-"

// DefaultDir returns the directory regions live in: /dev/shm when the
// kernel provides it, the temp dir otherwise.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Region is one published or attached shared mapping.
type Region struct {
	Name    string
	path    string
	data    []byte
	created bool
}

// Publish creates the region file sized exactly to len(data), fills it and
// maps it. Publishing an existing name fails: names are run-scoped and a
// collision means a leaked region from an earlier run.
func Publish(dir, name string, data []byte) (*Region, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("shmem: refusing to publish empty region %q", name)
	}
	path := filepath.Join(dir, Prefix+name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shmem: create region %q: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("shmem: write region %q: %w", name, err)
	}
	m, err := unix.Mmap(int(f.Fd()), 0, len(data), unix.PROT_READ, unix.MAP_SHARED)
	_ = f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shmem: map region %q: %w", name, err)
	}
	return &Region{Name: name, path: path, data: m, created: true}, nil
}

// Attach maps an existing region read-only by name.
func Attach(dir, name string) (*Region, error) {
	path := filepath.Join(dir, Prefix+name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shmem: attach region %q: %w", name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	m, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("shmem: map region %q: %w", name, err)
	}
	return &Region{Name: name, path: path, data: m}, nil
}

// Bytes returns the mapped data. The mapping is read-only; writing through
// the returned slice faults.
func (r *Region) Bytes() []byte { return r.data }

// Close unmaps the region, and unlinks the backing file when this Region
// created it. Safe to call more than once.
func (r *Region) Close() error {
	var err error
	if r.data != nil {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if r.created {
		r.created = false
		if rmErr := os.Remove(r.path); err == nil {
			err = rmErr
		}
	}
	return err
}

// List returns the names of regions currently published in dir, for leak
// detection.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if n := e.Name(); len(n) > len(Prefix) && n[:len(Prefix)] == Prefix {
			out = append(out, n[len(Prefix):])
		}
	}
	return out, nil
}
