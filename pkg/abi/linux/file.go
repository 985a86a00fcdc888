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

package linux

import (
	"encoding/binary"
	"fmt"
)

// Constants for open(2).
const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREATE = 0x200
	O_TRUNC  = 0x400
)

// InodeType is the type field of an on-disk inode.
type InodeType int16

// Inode types.
const (
	T_NONE   InodeType = 0
	T_DIR    InodeType = 1
	T_FILE   InodeType = 2
	T_DEVICE InodeType = 3
)

// String implements fmt.Stringer.
func (t InodeType) String() string {
	switch t {
	case T_NONE:
		return "none"
	case T_DIR:
		return "dir"
	case T_FILE:
		return "file"
	case T_DEVICE:
		return "device"
	default:
		return fmt.Sprintf("InodeType(%d)", int16(t))
	}
}

// Stat is the struct stat returned by fstat(2).
//
// The layout is: dev int32, ino uint32, type int16, nlink int16, 4 bytes of
// padding, size uint64.
type Stat struct {
	Dev   int32
	Ino   uint32
	Type  InodeType
	Nlink int16
	Size  uint64
}

// SizeofStat is the size of a marshalled Stat.
const SizeofStat = 24

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *Stat) SizeBytes() int {
	return SizeofStat
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *Stat) MarshalBytes(dst []byte) []byte {
	binary.LittleEndian.PutUint32(dst[0:], uint32(s.Dev))
	binary.LittleEndian.PutUint32(dst[4:], s.Ino)
	binary.LittleEndian.PutUint16(dst[8:], uint16(s.Type))
	binary.LittleEndian.PutUint16(dst[10:], uint16(s.Nlink))
	clear(dst[12:16])
	binary.LittleEndian.PutUint64(dst[16:], s.Size)
	return dst[SizeofStat:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *Stat) UnmarshalBytes(src []byte) []byte {
	s.Dev = int32(binary.LittleEndian.Uint32(src[0:]))
	s.Ino = binary.LittleEndian.Uint32(src[4:])
	s.Type = InodeType(binary.LittleEndian.Uint16(src[8:]))
	s.Nlink = int16(binary.LittleEndian.Uint16(src[10:]))
	s.Size = binary.LittleEndian.Uint64(src[16:])
	return src[SizeofStat:]
}
