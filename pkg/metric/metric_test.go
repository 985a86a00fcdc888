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

package metric

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %q not exported", name)
	return nil
}

func TestUint64Metric(t *testing.T) {
	m := MustCreateNewUint64Metric("/test/counter", "a counter")
	m.Increment()
	m.IncrementBy(4)
	if got := m.Value(); got != 5 {
		t.Errorf("Value(): got %d, want 5", got)
	}

	mf := gather(t, "filecore_test_counter")
	if got := mf.GetType(); got != dto.MetricType_COUNTER {
		t.Errorf("type: got %v, want COUNTER", got)
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Errorf("exported value: got %v, want 5", got)
	}
}

func TestUint64MetricFields(t *testing.T) {
	m := MustCreateNewUint64Metric("/test/by_kind", "by kind",
		NewField("kind", []string{"pipe", "device", "inode"}),
		NewField("op", []string{"read", "write"}))
	m.Increment("inode", "write")
	m.IncrementBy(2, "pipe", "read")
	if got := m.Value("inode", "write"); got != 1 {
		t.Errorf("Value(inode, write): got %d, want 1", got)
	}
	if got := m.Value("pipe", "read"); got != 2 {
		t.Errorf("Value(pipe, read): got %d, want 2", got)
	}
	if got := m.Value("device", "read"); got != 0 {
		t.Errorf("Value(device, read): got %d, want 0", got)
	}
	if got := len(gather(t, "filecore_test_by_kind").GetMetric()); got != 6 {
		t.Errorf("exported series: got %d, want 6", got)
	}
}

func TestDuplicateName(t *testing.T) {
	MustCreateNewUint64Metric("/test/dup", "first")
	if _, err := NewUint64Metric("/test/dup", "second"); err != ErrNameInUse {
		t.Errorf("NewUint64Metric(dup): got %v, want %v", err, ErrNameInUse)
	}
	if _, err := NewUint64Metric("/test/dup", "first"); err != ErrNameInUse {
		t.Errorf("NewUint64Metric(dup, same help): got %v, want %v", err, ErrNameInUse)
	}
	if err := RegisterCustomUint64Metric("/test/dup", false /* cumulative */, "gauge", func(...string) uint64 { return 0 }); err != ErrNameInUse {
		t.Errorf("RegisterCustomUint64Metric(dup): got %v, want %v", err, ErrNameInUse)
	}
}

func TestExportedNameCollision(t *testing.T) {
	MustCreateNewUint64Metric("/test/split/name", "nested")
	if _, err := NewUint64Metric("/test/split_name", "flat"); err != ErrNameInUse {
		t.Errorf("NewUint64Metric(/test/split_name): got %v, want %v", err, ErrNameInUse)
	}
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "noslash", "/Upper", "/has space"} {
		if _, err := NewUint64Metric(name, "bad"); err != ErrInvalidName {
			t.Errorf("NewUint64Metric(%q): got %v, want %v", name, err, ErrInvalidName)
		}
	}
}

func TestCustomMetric(t *testing.T) {
	live := uint64(7)
	MustRegisterCustomUint64Metric("/test/live", false /* cumulative */, "live things", func(...string) uint64 {
		return live
	})
	mf := gather(t, "filecore_test_live")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Errorf("gauge: got %v, want 7", got)
	}
}

func TestFieldMapperRoundTrip(t *testing.T) {
	m, err := newFieldMapper(NewField("a", []string{"x", "y"}), NewField("b", []string{"1", "2", "3"}))
	if err != nil {
		t.Fatalf("newFieldMapper: %v", err)
	}
	for key := 0; key < m.numKeys(); key++ {
		if got := m.lookup(m.keyToFields(key)...); got != key {
			t.Errorf("lookup(keyToFields(%d)): got %d", key, got)
		}
	}
}
