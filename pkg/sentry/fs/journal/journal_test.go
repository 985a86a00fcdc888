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

package journal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGroupCommit(t *testing.T) {
	j := New(10, 30)
	var committed [][]uint32
	j.SetCommitHook(func(blocks []uint32) {
		committed = append(committed, append([]uint32(nil), blocks...))
	})

	j.BeginOp()
	j.BeginOp()
	j.LogWrite(5)
	j.LogWrite(7)
	j.LogWrite(5) // absorbed
	j.EndOp()
	if len(committed) != 0 {
		t.Fatalf("commit with an operation outstanding: %v", committed)
	}
	j.LogWrite(9)
	j.EndOp()

	if diff := cmp.Diff([][]uint32{{5, 7, 9}}, committed); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	want := Stats{Ops: 2, Commits: 1, BlocksLogged: 3}
	if diff := cmp.Diff(want, j.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if j.InOp() {
		t.Errorf("InOp after all operations ended: got true, want false")
	}
}

func TestBeginOpWaitsForSpace(t *testing.T) {
	j := New(10, 30)
	for i := 0; i < 3; i++ {
		j.BeginOp()
	}

	started := make(chan struct{})
	go func() {
		j.BeginOp()
		close(started)
	}()

	select {
	case <-started:
		t.Fatalf("fourth BeginOp did not wait for log space")
	case <-time.After(50 * time.Millisecond):
	}

	j.EndOp()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("BeginOp still blocked after an operation ended")
	}
	for i := 0; i < 3; i++ {
		j.EndOp()
	}
	if got := j.Stats().Waits; got != 1 {
		t.Errorf("Waits: got %d, want 1", got)
	}
}

func TestLogWriteOutsideOpPanics(t *testing.T) {
	j := New(10, 30)
	defer func() {
		if recover() == nil {
			t.Errorf("LogWrite outside an operation did not panic")
		}
	}()
	j.LogWrite(1)
}

func TestTransactionTooBigPanics(t *testing.T) {
	j := New(2, 4)
	j.BeginOp()
	j.LogWrite(1)
	j.LogWrite(2)
	j.LogWrite(3)
	defer func() {
		if recover() == nil {
			t.Errorf("overflowing LogWrite did not panic")
		}
	}()
	j.LogWrite(4)
}

func TestEndOpWithoutBeginPanics(t *testing.T) {
	j := New(10, 30)
	defer func() {
		if recover() == nil {
			t.Errorf("EndOp without BeginOp did not panic")
		}
	}()
	j.EndOp()
}
