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

// Package cli is the main entrypoint for uksim.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/uksim/cmd"
	"gvisor.dev/ukernel/uksim/config"
	"gvisor.dev/ukernel/uksim/flag"
)

// configFile is the path of a configuration file holding flag values.
var configFile = flag.String("config", "", "path to a TOML file with a [flags] table of flag values. Flags set on the command line take precedence.")

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if *configFile != "" {
		f, err := config.LoadFile(*configFile)
		if err != nil {
			cmd.Fatalf("%v", err)
		}
		if err := f.Apply(flag.CommandLine); err != nil {
			cmd.Fatalf("%v", err)
		}
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)

	// Set up logging.
	if conf.Debug {
		log.SetLevel(log.Debug)
	} else {
		log.SetLevel(log.Warning)
	}

	var emitters log.MultiEmitter
	emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
	if len(conf.DebugLog) > 0 {
		opts := debugLogOpts{command: subcommand, start: time.Now()}
		f, err := log.OpenFile(conf.DebugLog, opts)
		if err != nil {
			cmd.Fatalf("error opening debug log file in %q: %v", conf.DebugLog, err)
		}
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, f))
		// The debug log gets everything.
		log.SetLevel(log.Debug)
	}
	switch len(emitters) {
	case 1:
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}
	if err := log.CopyStandardLogTo(log.Info); err != nil {
		cmd.Fatalf("%v", err)
	}

	const delimString = `**************** uksim ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Interrupting uksim stops the kernels it runs.
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(ctx, conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
	} else {
		log.Warningf("Failure to execute command, err: %v", subcmdCode)
	}
	stop()
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by uksim.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Run), "")
	cb(new(cmd.Layout), "")

	const toolsGroup = "tools"
	cb(new(cmd.Asm), toolsGroup)
	cb(new(cmd.Syscalls), toolsGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	case "json-k8s":
		return log.K8sJSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", format)
	panic("unreachable")
}

// debugLogOpts builds debug log file names. A pattern ending in '/' is a
// directory that gets a default file name.
type debugLogOpts struct {
	command string
	start   time.Time
}

// Build implements log.FileOpts.Build.
func (o debugLogOpts) Build(pattern string) string {
	if strings.HasSuffix(pattern, "/") {
		pattern = filepath.Join(pattern, "uksim.log.%TIMESTAMP%.%COMMAND%")
	}
	r := strings.NewReplacer(
		"%TIMESTAMP%", o.start.Format("20060102-150405.000000"),
		"%COMMAND%", o.command,
	)
	return r.Replace(pattern)
}

