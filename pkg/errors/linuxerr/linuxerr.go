// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"gvisor.dev/filecore/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno of the
// same name. The Errno method returns the number such that
// ToUnix(EPERM) == unix.EPERM.
var (
	noError      *errors.Error = nil
	EPERM                      = errors.New(unix.EPERM, "operation not permitted")
	ENOENT                     = errors.New(unix.ENOENT, "no such file or directory")
	EINTR                      = errors.New(unix.EINTR, "interrupted system call")
	EIO                        = errors.New(unix.EIO, "I/O error")
	ENXIO                      = errors.New(unix.ENXIO, "no such device or address")
	EBADF                      = errors.New(unix.EBADF, "bad file number")
	EAGAIN                     = errors.New(unix.EAGAIN, "try again")
	ENOMEM                     = errors.New(unix.ENOMEM, "out of memory")
	EACCES                     = errors.New(unix.EACCES, "permission denied")
	EFAULT                     = errors.New(unix.EFAULT, "bad address")
	EEXIST                     = errors.New(unix.EEXIST, "file exists")
	ENODEV                     = errors.New(unix.ENODEV, "no such device")
	ENOTDIR                    = errors.New(unix.ENOTDIR, "not a directory")
	EISDIR                     = errors.New(unix.EISDIR, "is a directory")
	EINVAL                     = errors.New(unix.EINVAL, "invalid argument")
	ENFILE                     = errors.New(unix.ENFILE, "file table overflow")
	EMFILE                     = errors.New(unix.EMFILE, "too many open files")
	EFBIG                      = errors.New(unix.EFBIG, "file too large")
	ENOSPC                     = errors.New(unix.ENOSPC, "no space left on device")
	EPIPE                      = errors.New(unix.EPIPE, "broken pipe")
	ENAMETOOLONG               = errors.New(unix.ENAMETOOLONG, "file name too long")
	ENOSYS                     = errors.New(unix.ENOSYS, "invalid system call number")
)

var errorMap = map[unix.Errno]*errors.Error{
	unix.EPERM:        EPERM,
	unix.ENOENT:       ENOENT,
	unix.EINTR:        EINTR,
	unix.EIO:          EIO,
	unix.ENXIO:        ENXIO,
	unix.EBADF:        EBADF,
	unix.EAGAIN:       EAGAIN,
	unix.ENOMEM:       ENOMEM,
	unix.EACCES:       EACCES,
	unix.EFAULT:       EFAULT,
	unix.EEXIST:       EEXIST,
	unix.ENODEV:       ENODEV,
	unix.ENOTDIR:      ENOTDIR,
	unix.EISDIR:       EISDIR,
	unix.EINVAL:       EINVAL,
	unix.ENFILE:       ENFILE,
	unix.EMFILE:       EMFILE,
	unix.EFBIG:        EFBIG,
	unix.ENOSPC:       ENOSPC,
	unix.EPIPE:        EPIPE,
	unix.ENAMETOOLONG: ENAMETOOLONG,
	unix.ENOSYS:       ENOSYS,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errnos without a
// sentinel here get a fresh *errors.Error.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if e, ok := errorMap[err]; ok {
		return e
	}
	return errors.New(err, err.Error())
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error. Wrapped errors are unwrapped.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == noError
	}
	if e == noError {
		return false
	}
	var target *errors.Error
	if goerrors.As(err, &target) {
		return target.Errno() == e.Errno()
	}
	var unixErr unix.Errno
	if goerrors.As(err, &unixErr) {
		return unixErr == e.Errno()
	}
	return false
}

// ErrnoOf extracts the errno carried by err, or EIO for errors that carry
// none.
func ErrnoOf(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var target *errors.Error
	if goerrors.As(err, &target) {
		return target.Errno()
	}
	var unixErr unix.Errno
	if goerrors.As(err, &unixErr) {
		return unixErr
	}
	var carrier interface{ Errno() unix.Errno }
	if goerrors.As(err, &carrier) {
		return carrier.Errno()
	}
	return unix.EIO
}
