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

package linuxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
)

// Class groups errnos by how a caller is expected to react to them.
type Class int

const (
	// ClassOther covers everything not listed below.
	ClassOther Class = iota

	// ClassResourceExhausted errors go away once the caller (or someone
	// else) releases files, mappings or blocks.
	ClassResourceExhausted

	// ClassPermissionDenied errors reflect the mode a file was opened with.
	// Retrying does not help.
	ClassPermissionDenied

	// ClassInvalidHandle errors name a device, address or descriptor that
	// does not exist.
	ClassInvalidHandle

	// ClassPartialWrite errors mean a prefix of the write is durable and the
	// file must be treated as partially written.
	ClassPartialWrite
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ClassResourceExhausted:
		return "ResourceExhausted"
	case ClassPermissionDenied:
		return "PermissionDenied"
	case ClassInvalidHandle:
		return "InvalidHandle"
	case ClassPartialWrite:
		return "PartialWrite"
	default:
		return "Other"
	}
}

// partialWrite is implemented by errors that report a durable prefix.
type partialWrite interface {
	PartialWrite() bool
}

// ClassOf returns the class of err.
func ClassOf(err error) Class {
	if err == nil {
		return ClassOther
	}
	var pw partialWrite
	if goerrors.As(err, &pw) && pw.PartialWrite() {
		return ClassPartialWrite
	}
	switch ErrnoOf(err) {
	case unix.ENFILE, unix.EMFILE, unix.ENOMEM, unix.ENOSPC:
		return ClassResourceExhausted
	case unix.EBADF, unix.EACCES, unix.EPERM:
		return ClassPermissionDenied
	case unix.ENODEV, unix.ENXIO, unix.EINVAL, unix.EFAULT:
		return ClassInvalidHandle
	default:
		return ClassOther
	}
}

// IsResourceExhausted returns true if err may be cured by releasing
// resources and trying again.
func IsResourceExhausted(err error) bool {
	return ClassOf(err) == ClassResourceExhausted
}
