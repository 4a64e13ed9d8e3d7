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

// Package metric provides primitives for collecting metrics and exporting
// them in the Prometheus text format.
package metric

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
	"gvisor.dev/ukernel/pkg/sync"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrFieldValueContainsIllegalChar indicates that the value of a metric
	// field had an invalid character in it.
	ErrFieldValueContainsIllegalChar = errors.New("metric field value contains illegal character")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrBadMetricName indicates that a metric name does not start with a
	// slash.
	ErrBadMetricName = errors.New("metric name must start with '/'")
)

// namespace prefixes every exported metric name.
const namespace = "ukernel"

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

func (f Field) validate() error {
	if len(f.allowedValues) == 0 {
		return ErrFieldHasNoAllowedValues
	}
	for _, v := range f.allowedValues {
		if strings.ContainsAny(v, "\",\\\n") {
			return ErrFieldValueContainsIllegalChar
		}
	}
	return nil
}

// metadata describes a registered metric.
type metadata struct {
	name        string
	description string
	cumulative  bool
	field       *Field
}

// exportName converts a metric name like "/kernel/syscalls" to the Prometheus
// name "ukernel_kernel_syscalls".
func (m *metadata) exportName() string {
	return namespace + strings.ReplaceAll(m.name, "/", "_")
}

func (m *metadata) metricType() dto.MetricType {
	if m.cumulative {
		return dto.MetricType_COUNTER
	}
	return dto.MetricType_GAUGE
}

// customUint64Metric is a metric whose value is produced by a callback.
type customUint64Metric struct {
	metadata

	// value returns the current value of the metric for the given set of
	// fields. It takes a variadic number of field values as argument.
	value func(fieldValues ...string) uint64
}

var (
	// allMetricsMu protects allMetrics.
	allMetricsMu sync.Mutex

	// allMetrics are the registered metrics, keyed by name.
	allMetrics = make(map[string]*customUint64Metric)
)

// RegisterCustomUint64Metric registers a metric with the given name.
//
// Preconditions:
//   - name must be globally unique.
//   - value is expected to accept exactly len(fields) arguments.
func RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	if !strings.HasPrefix(name, "/") {
		return ErrBadMetricName
	}
	// Metrics can exist without fields.
	if l := len(fields); l > 1 {
		return fmt.Errorf("%d fields provided, must be <= 1", l)
	}
	m := &customUint64Metric{
		metadata: metadata{
			name:        name,
			description: description,
			cumulative:  cumulative,
		},
		value: value,
	}
	for i := range fields {
		if err := fields[i].validate(); err != nil {
			return err
		}
		m.field = &fields[i]
	}

	allMetricsMu.Lock()
	defer allMetricsMu.Unlock()
	if _, ok := allMetrics[name]; ok {
		return ErrNameInUse
	}
	allMetrics[name] = m
	return nil
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
	// field is the optional field breaking down the metric.
	field *Field

	// values holds one counter per allowed field value, or a single counter
	// when the metric has no field.
	values []atomic.Uint64
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	m := &Uint64Metric{values: make([]atomic.Uint64, 1)}
	if len(fields) == 1 {
		m.field = &fields[0]
		m.values = make([]atomic.Uint64, len(fields[0].allowedValues))
	}
	return m, RegisterCustomUint64Metric(name, true /* cumulative */, description, m.Value, fields...)
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

// key maps field values to an index in m.values. It panics on an unknown
// field value or a wrong number of values.
func (m *Uint64Metric) key(fieldValues []string) int {
	if m.field == nil {
		if len(fieldValues) != 0 {
			panic(fmt.Sprintf("metric has no fields but got values %v", fieldValues))
		}
		return 0
	}
	if len(fieldValues) != 1 {
		panic(fmt.Sprintf("metric has one field but got values %v", fieldValues))
	}
	for i, v := range m.field.allowedValues {
		if v == fieldValues[0] {
			return i
		}
	}
	panic(fmt.Sprintf("invalid value %q for field %q", fieldValues[0], m.field.name))
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.values[m.key(fieldValues)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(v)
}

// family snapshots m into a Prometheus metric family. Field values whose
// counter is zero are omitted.
func (m *customUint64Metric) family() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(m.exportName()),
		Help: proto.String(m.description),
		Type: m.metricType().Enum(),
	}
	sample := func(v uint64, labels []*dto.LabelPair) *dto.Metric {
		f := proto.Float64(float64(v))
		if m.cumulative {
			return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: f}}
		}
		return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: f}}
	}
	if m.field == nil {
		mf.Metric = append(mf.Metric, sample(m.value(), nil))
		return mf
	}
	for _, fv := range m.field.allowedValues {
		v := m.value(fv)
		if v == 0 {
			continue
		}
		mf.Metric = append(mf.Metric, sample(v, []*dto.LabelPair{{
			Name:  proto.String(m.field.name),
			Value: proto.String(fv),
		}}))
	}
	return mf
}

// Write exports every registered metric to w in the Prometheus text format,
// sorted by name. It returns the number of bytes written.
func Write(w io.Writer) (int, error) {
	allMetricsMu.Lock()
	names := make([]string, 0, len(allMetrics))
	for name := range allMetrics {
		names = append(names, name)
	}
	metrics := make([]*customUint64Metric, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		metrics = append(metrics, allMetrics[name])
	}
	allMetricsMu.Unlock()

	written := 0
	for _, m := range metrics {
		mf := m.family()
		if len(mf.Metric) == 0 {
			continue
		}
		n, err := expfmt.MetricFamilyToText(w, mf)
		written += n
		if err != nil {
			return written, fmt.Errorf("writing metric %q: %w", m.name, err)
		}
	}
	return written, nil
}
