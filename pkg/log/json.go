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
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

type jsonLog struct {
	Msg    string         `json:"msg"`
	Level  Level          `json:"level"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	switch l {
	case Warning:
		return []byte(`"warning"`), nil
	case Info:
		return []byte(`"info"`), nil
	case Debug:
		return []byte(`"debug"`), nil
	default:
		return nil, fmt.Errorf("unknown level %v", l)
	}
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It can unmarshal
// from both string names and integers.
func (l *Level) UnmarshalJSON(b []byte) error {
	switch s := string(b); s {
	case "0", `"warning"`:
		*l = Warning
	case "1", `"info"`:
		*l = Info
	case "2", `"debug"`:
		*l = Debug
	default:
		return fmt.Errorf("unknown level %q", s)
	}
	return nil
}

// callerLine prefixes msg with the "file:line] " of the frame depth levels
// above callerLine's caller.
func callerLine(depth int, msg string) string {
	if _, file, line, ok := runtime.Caller(depth + 2); ok {
		if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
			file = file[slash+1:]
		}
		return fmt.Sprintf("%s:%d] %s", file, line, msg)
	}
	return msg
}

// marshalEntry encodes entry. If fields holds a value JSON cannot encode, the
// fields move into the message text instead.
func marshalEntry(entry any, msg *string, fields *map[string]any, prefix string) []byte {
	b, err := json.Marshal(entry)
	if err == nil {
		return b
	}
	*msg = prefix + *msg
	*fields = nil
	b, err = json.Marshal(entry)
	if err != nil {
		panic(err)
	}
	return b
}

// JSONEmitter logs messages in json format. Fields are recorded under
// "fields".
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	e.EmitFields(1+depth, level, timestamp, nil, format, v...)
}

// EmitFields implements FieldEmitter.EmitFields.
func (e JSONEmitter) EmitFields(depth int, level Level, timestamp time.Time, fields []Field, format string, v ...any) {
	j := jsonLog{
		Msg:    callerLine(depth, fmt.Sprintf(format, v...)),
		Level:  level,
		Time:   timestamp,
		Fields: fieldMap(fields),
	}
	e.Writer.Write(marshalEntry(&j, &j.Msg, &j.Fields, fieldPrefix(fields)))
}
