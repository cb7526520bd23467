// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command deduce runs the interprocedural fact deduction engine on a
// textual IR module and prints the annotated result.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fixpoint-tools/deduce/analysis/attributor"
	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/analysis/config"
	"github.com/fixpoint-tools/deduce/internal/formatutil"
	"github.com/fixpoint-tools/deduce/ir"
)

const usage = `deduce: interprocedural fact deduction for SSA IR
Usage:
  deduce [options] <IR file path(s)>
Options:
  -config file   yaml configuration file
  -scc           process strongly connected components callees-first
  -dot file      dump the dependency graph in DOT form
  -stats         print deduction counters
  -o file        write the rewritten module (default stdout)
Example:
  deduce -config=config.yaml -stats module.ll`

func main() {
	var (
		configFile = flag.String("config", "", "yaml configuration file")
		useSCC     = flag.Bool("scc", false, "process SCCs callees-first")
		dotFile    = flag.String("dot", "", "dump the dependency graph in DOT form")
		stats      = flag.Bool("stats", false, "print deduction counters")
		outFile    = flag.String("o", "", "write the rewritten module to this file")
	)
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "error: expected at least one IR file\n%s\n", usage)
		os.Exit(2)
	}
	if err := run(*configFile, *useSCC, *dotFile, *stats, *outFile, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", formatutil.Red("error:"), err)
		os.Exit(1)
	}
}

func run(configFile string, useSCC bool, dotFile string, stats bool, outFile string, files []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log := config.NewLogGroup(cfg)

	var srcs []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", f, err)
		}
		srcs = append(srcs, string(data))
	}
	m, err := ir.Parse(strings.Join(srcs, "\n"))
	if err != nil {
		return fmt.Errorf("could not parse module: %w", err)
	}

	tli := &ir.TargetLibraryInfo{}
	changed := false
	if useSCC {
		changed = attributor.RunOnSCCs(m, cfg, log, tli, callgraph.NoopUpdater{})
		log.Infof("deduction over SCCs done, changed=%v", changed)
	} else {
		// A single run serves the dump flags below.
		cache := attributor.NewInformationCache(m, tli)
		a := attributor.New(cfg, log, cache, m.Funcs)
		for _, fn := range m.Funcs {
			if fn.IsDeclaration() {
				continue
			}
			a.SeedFunction(fn)
		}
		changed = bool(a.Run())
		if dotFile != "" {
			dot, err := a.DumpDepGraph()
			if err != nil {
				return fmt.Errorf("could not render dependency graph: %w", err)
			}
			if err := os.WriteFile(dotFile, dot, 0o644); err != nil {
				return fmt.Errorf("could not write %s: %w", dotFile, err)
			}
			log.Infof("dependency graph written to %s", dotFile)
		}
		if stats {
			a.Stats().WritePrometheus(os.Stderr)
		}
	}

	out := ir.Print(m)
	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(out), 0o644); err != nil {
			return fmt.Errorf("could not write %s: %w", outFile, err)
		}
	} else {
		fmt.Println(formatutil.Faint("; deduced module (changed=" + fmt.Sprint(changed) + ")"))
		fmt.Print(out)
	}
	return nil
}
