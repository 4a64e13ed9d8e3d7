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

package workload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
)

const exitProgram = "li a0, 3\nli a7, 93\necall\n"

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "exit3.toml", `
init = "main"
expect_exit = 3

[flags]
sched = "fifo"
time-slice = "10"

[apps.main]
asm = """
li a0, 3
li a7, 93
ecall
"""

[apps.image]
file = "image.bin"
`)
	w, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := w.Name, "exit3"; got != want {
		t.Errorf("Name got %q want %q", got, want)
	}
	if got, want := w.FlagNames(), []string{"sched", "time-slice"}; !cmp.Equal(got, want) {
		t.Errorf("FlagNames() got %v want %v", got, want)
	}
	if w.ExpectExit == nil || *w.ExpectExit != 3 {
		t.Errorf("ExpectExit got %v want 3", w.ExpectExit)
	}
	if w.ExpectStdout != nil {
		t.Errorf("ExpectStdout got %q want unset", *w.ExpectStdout)
	}
	if got, want := w.Apps["image"].File, "image.bin"; got != want {
		t.Errorf("apps.image.file got %q want %q", got, want)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "w.yaml", `
name: greeting
init: hello
expect_stdout: "hello, world\n"
flags:
  phys-frames: "512"
`)
	w, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := w.Name, "greeting"; got != want {
		t.Errorf("Name got %q want %q", got, want)
	}
	if w.ExpectStdout == nil || *w.ExpectStdout != "hello, world\n" {
		t.Errorf("ExpectStdout got %v want %q", w.ExpectStdout, "hello, world\n")
	}
	if got, want := w.Flags["phys-frames"], "512"; got != want {
		t.Errorf("flags[phys-frames] got %q want %q", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"unknown.toml": "init = \"a\"\nstack = 3\n",
		"unknown.yaml": "init: a\nstack: 3\n",
		"noinit.toml":  "name = \"x\"\n",
		"both.yml":     "init: a\napps:\n  a:\n    asm: nop\n    file: a.bin\n",
		"neither.toml": "init = \"a\"\n[apps.a]\n",
		"format.json":  "{}",
		"garbage.toml": "init = \n",
		"garbage.yaml": "init: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name, data)
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%s) succeeded", name)
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("Load(missing.yaml) succeeded")
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	image := []byte{1, 2, 3, 4}
	if err := os.WriteFile(filepath.Join(dir, "image.bin"), image, 0644); err != nil {
		t.Fatal(err)
	}
	w := &Workload{
		Init: "main",
		Apps: map[string]App{
			"main":  {Asm: exitProgram},
			"image": {File: "image.bin"},
		},
		dir: dir,
	}
	base := loader.AppTable{
		"main":  []byte("shadowed"),
		"other": []byte("kept"),
	}
	got, err := w.Build(base)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := []string{"image", "main", "other"}; !cmp.Equal(got.Names(), want) {
		t.Errorf("Names() got %v want %v", got.Names(), want)
	}
	if want := interp.MustAssemble(exitProgram, loader.FlatBase); !bytes.Equal(got["main"], want) {
		t.Errorf("main got %x want %x", got["main"], want)
	}
	if !bytes.Equal(got["image"], image) {
		t.Errorf("image got %x want %x", got["image"], image)
	}
	if string(base["main"]) != "shadowed" {
		t.Errorf("Build modified its base table")
	}

	w.Apps["bad"] = App{Asm: "frobnicate a0"}
	if _, err := w.Build(nil); err == nil {
		t.Errorf("Build with a bad program succeeded")
	}
	delete(w.Apps, "bad")
	w.Apps["gone"] = App{File: "gone.bin"}
	if _, err := w.Build(nil); err == nil {
		t.Errorf("Build with a missing file succeeded")
	}
}

func TestCheck(t *testing.T) {
	code := int32(0)
	out := "ok\n"
	w := &Workload{Init: "main"}
	if err := w.Check(5, "anything"); err != nil {
		t.Errorf("Check without expectations: %v", err)
	}
	w.ExpectExit = &code
	w.ExpectStdout = &out
	if err := w.Check(0, "ok\n"); err != nil {
		t.Errorf("Check(0, ok): %v", err)
	}
	if err := w.Check(1, "ok\n"); err == nil {
		t.Errorf("Check with the wrong exit code succeeded")
	}
	if err := w.Check(0, "ko\n"); err == nil {
		t.Errorf("Check with the wrong output succeeded")
	}
}
