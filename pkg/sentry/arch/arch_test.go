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

package arch

import "testing"

func TestSyscallArgumentConversions(t *testing.T) {
	a := SyscallArgument{Value: ^uintptr(0)}
	if got := a.Int(); got != -1 {
		t.Errorf("Int: got %d, want -1", got)
	}
	if got := a.Int64(); got != -1 {
		t.Errorf("Int64: got %d, want -1", got)
	}
	if got, want := a.Uint(), ^uint32(0); got != want {
		t.Errorf("Uint: got %d, want %d", got, want)
	}
}

func TestArgs(t *testing.T) {
	args := Args(1, 2, 3)
	for i, want := range []uintptr{1, 2, 3, 0, 0, 0} {
		if got := args[i].Value; got != want {
			t.Errorf("args[%d]: got %d, want %d", i, got, want)
		}
	}
}
