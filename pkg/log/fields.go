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


package log

import (
	"fmt"
	"strings"
	"time"
)

// Field is a key/value pair attached to a log statement, such as the pid of
// the task a statement is about.
type Field struct {
	Key   string
	Value any
}

// FieldEmitter is implemented by emitters that record fields apart from the
// message. Other emitters see the fields as a "[key=value ...] " prefix of the
// message.
type FieldEmitter interface {
	EmitFields(depth int, level Level, timestamp time.Time, fields []Field, format string, v ...any)
}

// fieldPrefix renders fields for emitters that only take a message.
func fieldPrefix(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
	}
	b.WriteString("] ")
	return b.String()
}

// fieldMap returns fields keyed by name, or nil if there are none.
func fieldMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

func emitWithFields(e Emitter, depth int, level Level, timestamp time.Time, fields []Field, format string, v ...any) {
	if fe, ok := e.(FieldEmitter); ok {
		fe.EmitFields(1+depth, level, timestamp, fields, format, v...)
		return
	}
	if len(fields) == 0 {
		e.Emit(1+depth, level, timestamp, format, v...)
		return
	}
	e.Emit(1+depth, level, timestamp, "%s"+format, append([]any{fieldPrefix(fields)}, v...)...)
}

// EmitFields emits to all emitters.
func (m *MultiEmitter) EmitFields(depth int, level Level, timestamp time.Time, fields []Field, format string, v ...any) {
	for _, e := range *m {
		emitWithFields(e, 1+depth, level, timestamp, fields, format, v...)
	}
}

// EmitWithFields logs at level with fields attached, if level is being
// logged.
func (l *BasicLogger) EmitWithFields(depth int, level Level, fields []Field, format string, v ...any) {
	if l.IsLogging(level) {
		emitWithFields(l.Emitter, 1+depth, level, time.Now(), fields, format, v...)
	}
}
