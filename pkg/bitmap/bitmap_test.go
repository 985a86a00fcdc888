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

package bitmap

import "testing"

func TestAddRemove(t *testing.T) {
	b := New(100)
	b.Add(3)
	b.Add(3)
	b.Add(99)
	if got := b.Count(); got != 2 {
		t.Errorf("Count: got %d, want 2", got)
	}
	if !b.Contains(99) || b.Contains(4) {
		t.Errorf("Contains: got (%t, %t), want (true, false)", b.Contains(99), b.Contains(4))
	}
	b.Remove(3)
	b.Remove(3)
	if got := b.Count(); got != 1 {
		t.Errorf("Count after Remove: got %d, want 1", got)
	}
}

func TestFirstZero(t *testing.T) {
	b := New(130)
	for i := uint32(0); i < 70; i++ {
		b.Add(i)
	}
	for _, tc := range []struct {
		start uint32
		want  uint32
	}{
		{0, 70},
		{70, 70},
		{100, 100},
		{500, 70},
	} {
		if got := b.FirstZero(tc.start); got != tc.want {
			t.Errorf("FirstZero(%d): got %d, want %d", tc.start, got, tc.want)
		}
	}

	// Wrap around to the front.
	for i := uint32(70); i < 130; i++ {
		b.Add(i)
	}
	b.Remove(5)
	if got := b.FirstZero(80); got != 5 {
		t.Errorf("FirstZero(80) after wrap: got %d, want 5", got)
	}
	b.Add(5)
	if got := b.FirstZero(0); got != NoBit {
		t.Errorf("FirstZero on full bitmap: got %d, want NoBit", got)
	}
	if !b.Full() {
		t.Errorf("Full: got false, want true")
	}
}

func TestFirstZeroIgnoresTail(t *testing.T) {
	// Bits past size in the last word must never be returned.
	b := New(65)
	for i := uint32(0); i < 65; i++ {
		b.Add(i)
	}
	if got := b.FirstZero(0); got != NoBit {
		t.Errorf("FirstZero: got %d, want NoBit", got)
	}
}

func TestOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Add(out of range) did not panic")
		}
	}()
	b := New(8)
	b.Add(8)
}
