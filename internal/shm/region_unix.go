// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package shm

import (
	"fmt"
	"os"
	"unsafe"

	"code.hybscloud.com/shmipc/internal/syserr"
	"golang.org/x/sys/unix"
)

// openShared maps the POSIX shared-memory object named by name, creating
// it if required by mode. It returns the open file descriptor (kept open
// for the lifetime of the mapping, matching shm_open/mmap conventions),
// the mapped bytes, and whether this call created the backing object.
func openShared(name string, size int, mode Mode) (fd int, data []byte, created bool, err error) {
	path := shmPath(name)

	switch mode {
	case CreateExclusive:
		fd, err = unix.ShmOpen(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if err == unix.EEXIST {
				return 0, nil, false, fmt.Errorf("shm: open %q: %w", name, ErrExists)
			}
			return 0, nil, false, syserr.New("shm_open", name, err)
		}
		created = true

	case OpenExisting:
		fd, err = unix.ShmOpen(path, os.O_RDWR, 0o600)
		if err != nil {
			if err == unix.ENOENT {
				return 0, nil, false, fmt.Errorf("shm: open %q: %w", name, ErrNotExist)
			}
			return 0, nil, false, syserr.New("shm_open", name, err)
		}

	case CreateOrOpen:
		fd, err = unix.ShmOpen(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			created = true
			break
		}
		if err != unix.EEXIST {
			return 0, nil, false, syserr.New("shm_open", name, err)
		}
		fd, err = unix.ShmOpen(path, os.O_RDWR, 0o600)
		if err != nil {
			return 0, nil, false, syserr.New("shm_open", name, err)
		}

	default:
		return 0, nil, false, fmt.Errorf("shm: invalid mode %d", mode)
	}

	if created {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			_ = unix.ShmUnlink(path)
			return 0, nil, false, syserr.New("ftruncate", name, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return 0, nil, false, syserr.New("fstat", name, err)
		}
		size = int(st.Size)
	}

	data, err = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		if created {
			_ = unix.ShmUnlink(path)
		}
		return 0, nil, false, syserr.New("mmap", name, err)
	}
	return fd, data, created, nil
}

func unmapAndClose(fd int, data []byte) error {
	err := unix.Munmap(data)
	if cerr := unix.Close(fd); err == nil {
		err = cerr
	}
	return err
}

// rawPointer returns the address of b's first byte as an unsafe.Pointer,
// for overlaying fixed-layout shared records onto mapped memory.
func rawPointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}
