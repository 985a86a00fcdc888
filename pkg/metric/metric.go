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

// Package metric provides primitives for collecting metrics.
//
// Metrics keep their values in atomics and are exported through a Prometheus
// registry, see Registry.
package metric

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every exported metric name.
const namespace = "filecore"

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that a metric name does not have the
	// "/component/name" form.
	ErrInvalidName = errors.New("metric name must be of the form /a/b_c")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")
)

// registry holds every metric created by this package.
var registry = prometheus.NewRegistry()

// allMetrics is the set of exported names in use. Two metric names that
// differ only in "/" versus "_" share an exported name.
var allMetrics = struct {
	mu    sync.Mutex
	names map[string]struct{}
}{names: make(map[string]struct{})}

// Registry returns the Prometheus registry that all metrics are registered
// with. It implements prometheus.Gatherer.
func Registry() *prometheus.Registry {
	return registry
}

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// fieldMapper maps field value combinations to dense indexes.
type fieldMapper struct {
	fields []Field
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, ErrFieldHasNoAllowedValues
		}
	}
	return fieldMapper{fields: fields}, nil
}

func (m fieldMapper) numKeys() int {
	n := 1
	for _, f := range m.fields {
		n *= len(f.allowedValues)
	}
	return n
}

func (m fieldMapper) labelNames() []string {
	names := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		names = append(names, f.name)
	}
	return names
}

// lookup returns the key for the given field values. It panics if the values
// do not match the fields the metric was defined with.
func (m fieldMapper) lookup(fieldValues ...string) int {
	if len(fieldValues) != len(m.fields) {
		panic(fmt.Sprintf("invalid field values %v for fields %v", fieldValues, m.labelNames()))
	}
	key := 0
	for i, f := range m.fields {
		idx := -1
		for j, v := range f.allowedValues {
			if v == fieldValues[i] {
				idx = j
				break
			}
		}
		if idx < 0 {
			panic(fmt.Sprintf("value %q not allowed for field %q", fieldValues[i], f.name))
		}
		key = key*len(f.allowedValues) + idx
	}
	return key
}

// keyToFields is the inverse of lookup.
func (m fieldMapper) keyToFields(key int) []string {
	values := make([]string, len(m.fields))
	for i := len(m.fields) - 1; i >= 0; i-- {
		allowed := m.fields[i].allowedValues
		values[i] = allowed[key%len(allowed)]
		key /= len(allowed)
	}
	return values
}

// promName converts a "/component/name" metric name to a Prometheus name.
func promName(name string) (string, error) {
	if !strings.HasPrefix(name, "/") || len(name) < 2 {
		return "", ErrInvalidName
	}
	s := strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
	for _, c := range s {
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return "", ErrInvalidName
		}
	}
	return namespace + "_" + s, nil
}

// collector exports a set of values through Prometheus.
type collector struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	mapper    fieldMapper
	value     func(key int) uint64
}

// Describe implements prometheus.Collector.Describe.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.Collect.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for key := 0; key < c.mapper.numKeys(); key++ {
		ch <- prometheus.MustNewConstMetric(c.desc, c.valueType, float64(c.value(key)), c.mapper.keyToFields(key)...)
	}
}

func register(name string, cumulative bool, description string, mapper fieldMapper, value func(key int) uint64) error {
	pname, err := promName(name)
	if err != nil {
		return err
	}
	valueType := prometheus.GaugeValue
	if cumulative {
		valueType = prometheus.CounterValue
	}
	c := &collector{
		desc:      prometheus.NewDesc(pname, description, mapper.labelNames(), nil),
		valueType: valueType,
		mapper:    mapper,
		value:     value,
	}
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if _, ok := allMetrics.names[pname]; ok {
		return ErrNameInUse
	}
	if err := registry.Register(c); err != nil {
		return err
	}
	allMetrics.names[pname] = struct{}{}
	return nil
}

// RegisterCustomUint64Metric registers a metric with the given name.
//
// Register must only be called at init and will return and error if called
// after Initialized.
//
// Preconditions:
//   - name must be globally unique.
//   - value is expected to accept exactly len(fields) arguments.
func RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	mapper, err := newFieldMapper(fields...)
	if err != nil {
		return err
	}
	return register(name, cumulative, description, mapper, func(key int) uint64 {
		return value(mapper.keyToFields(key)...)
	})
}

// MustRegisterCustomUint64Metric calls RegisterCustomUint64Metric and panics
// if it returns an error.
func MustRegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) {
	if err := RegisterCustomUint64Metric(name, cumulative, description, value, fields...); err != nil {
		panic(fmt.Sprintf("Unable to register metric %q: %s", name, err))
	}
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
type Uint64Metric struct {
	// fields is the map of field-value combination index keys to Uint64 counters.
	fields []atomic.Uint64

	// fieldMapper is used to generate index keys for the fields array (above)
	// based on field value combinations, and vice-versa.
	fieldMapper fieldMapper
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	m := &Uint64Metric{
		fieldMapper: f,
		fields:      make([]atomic.Uint64, f.numKeys()),
	}
	return m, register(name, true /* cumulative */, description, f, func(key int) uint64 {
		return m.fields[key].Load()
	})
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns an
// error.
func MustCreateNewUint64Metric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}
