// Copyright 2018 The gVisor Authors.
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
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: &buf}}
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)
	if got, want := buf.String(), "shown 2\nshown 3\n"; got != want {
		t.Errorf("output got %q want %q", got, want)
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) got false after SetLevel(Debug)")
	}
}

func TestGoogleEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "pid %d exited", 3)

	got := buf.String()
	if !strings.HasPrefix(got, "W0304 05:06:07.000008 ") {
		t.Errorf("header got %q", got)
	}
	if !strings.Contains(got, "log_test.go:") {
		t.Errorf("caller missing from %q", got)
	}
	if !strings.HasSuffix(got, "] pid 3 exited\n") {
		t.Errorf("message got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"warning", Warning},
		{"info", Info},
		{"Debug", Debug},
	} {
		got, err := ParseLevel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLevel(%q) got (%v, %v) want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Errorf("ParseLevel(trace) succeeded")
	}
}

func TestEmitWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: &buf}}
	fields := []Field{{Key: "pid", Value: int32(3)}, {Key: "cpu", Value: 0}}
	l.EmitWithFields(0, Debug, fields, "hidden")
	l.EmitWithFields(0, Info, fields, "exited with code %d", 0)
	l.EmitWithFields(0, Warning, nil, "100%% done")
	if got, want := buf.String(), "[pid=3 cpu=0] exited with code 0\n100% done\n"; got != want {
		t.Errorf("output got %q want %q", got, want)
	}
}

func TestGoogleEmitterFields(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	e.EmitFields(0, Info, time.Now(), []Field{{Key: "pid", Value: int32(3)}}, "exited")
	got := buf.String()
	if !strings.Contains(got, "log_test.go:") {
		t.Errorf("caller missing from %q", got)
	}
	if !strings.HasSuffix(got, "] [pid=3] exited\n") {
		t.Errorf("message got %q", got)
	}
}

func TestMultiEmitterFields(t *testing.T) {
	var text, structured bytes.Buffer
	m := MultiEmitter{&Writer{Next: &text}, JSONEmitter{&Writer{Next: &structured}}}
	m.EmitFields(0, Warning, time.Now(), []Field{{Key: "pid", Value: int32(7)}}, "killed")
	if got, want := text.String(), "[pid=7] killed\n"; got != want {
		t.Errorf("text output got %q want %q", got, want)
	}
	if got := structured.String(); !strings.Contains(got, `"fields":{"pid":7}`) || !strings.Contains(got, "log_test.go:") {
		t.Errorf("json output got %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(time.Second)
	now := time.Unix(1000, 0)
	format, v, ok := r.admitAt(now, "killed %d", []any{1})
	if !ok || format != "killed %d" {
		t.Fatalf("first statement got (%q, %v) want admitted unchanged", format, ok)
	}
	for i := 0; i < 2; i++ {
		if _, _, ok := r.admitAt(now, "killed %d", []any{2}); ok {
			t.Errorf("statement %d within the interval was admitted", i+2)
		}
	}
	format, v, ok = r.admitAt(now.Add(2*time.Second), "killed %d", []any{4})
	if !ok {
		t.Fatalf("statement after the interval was dropped")
	}
	if got := fmt.Sprintf(format, v...); got != "killed 4 (2 similar messages dropped)" {
		t.Errorf("statement got %q", got)
	}
	if _, v, _ := r.admitAt(now.Add(4*time.Second), "killed", nil); len(v) != 0 {
		t.Errorf("dropped count reported twice: %v", v)
	}
}

func TestWarningfLimited(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Warning, Emitter: &Writer{Next: &buf}}
	r := NewRateLimiter(time.Hour)
	fields := []Field{{Key: "pid", Value: int32(2)}}
	l.WarningfLimited(r, fields, "killed by %s", "page fault")
	l.WarningfLimited(r, fields, "killed by %s", "page fault")
	if got, want := buf.String(), "[pid=2] killed by page fault\n"; got != want {
		t.Errorf("output got %q want %q", got, want)
	}
}
