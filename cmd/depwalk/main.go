// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ntdeps/depwalk/apiset"
	"github.com/ntdeps/depwalk/depgraph"
	"github.com/ntdeps/depwalk/internal/log"
	"github.com/ntdeps/depwalk/resolver"
	"github.com/ntdeps/depwalk/symcheck"
)

var logger = log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stderr), log.FilterLevel(log.LevelInfo)))

var (
	userPath      []string
	apiSetFile    string
	systemDir     string
	skipSystem    bool
	maxDepth      int
	filterPattern string
	checkSymbols  bool
	lddStyle      bool
)

func prettyPrint(buff []byte) string {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, buff, "", "\t"); err != nil {
		logger.Errorf("JSON encode error: %v", err)
		return string(buff)
	}
	return prettyJSON.String()
}

func buildContext(rootPath string) resolver.Context {
	cwd, _ := os.Getwd()

	var apiSetMap *apiset.Map
	if apiSetFile != "" {
		m, err := apiset.Load(apiSetFile)
		if err != nil {
			logger.Warnf("failed to load API-Set snapshot %s: %v", apiSetFile, err)
			m = apiset.New()
		}
		apiSetMap = m
	} else {
		apiSetMap = apiset.New()
	}

	sysDir := systemDir
	if sysDir == "" {
		sysDir = filepath.Join(cwd, "System32")
	}

	return resolver.Context{
		RootPath:       rootPath,
		Cwd:            cwd,
		UserPath:       userPath,
		SystemDir:      sysDir,
		SkipSystemDirs: skipSystem,
		EnvPath:        filepath.SplitList(os.Getenv("PATH")),
		MaxDepth:       maxDepth,
		Filter:         filterPattern,
		CheckSymbols:   checkSymbols,
		APISet:         apiSetMap,
	}
}

func runResolve(cmd *cobra.Command, args []string) {
	rootPath := args[0]

	ctx := buildContext(rootPath)
	r := resolver.New(ctx)
	report, err := r.Resolve()
	if err != nil {
		logger.Errorf("resolve failed: %v", err)
		os.Exit(1)
	}

	if checkSymbols {
		report.Mismatches = symcheck.Check(report)
	}

	if lddStyle {
		printLdd(report)
		return
	}

	out, err := json.Marshal(report)
	if err != nil {
		logger.Errorf("encoding report: %v", err)
		os.Exit(1)
	}
	fmt.Println(prettyPrint(out))

	exitCode := 0
	for _, n := range report.Nodes {
		if n.Kind == depgraph.KindMissing {
			exitCode = 2
		}
	}
	if len(report.Mismatches) > 0 {
		exitCode = 3
	}
	os.Exit(exitCode)
}

// printLdd renders the graph in a subset of GNU ldd's verbose output,
// indenting by depth and marking unresolved dependencies "not found".
func printLdd(report *depgraph.Report) {
	var order []*depgraph.Node
	seen := make(map[string]bool)

	var walk func(identity string, depth int)
	walk = func(identity string, depth int) {
		if seen[identity] {
			return
		}
		seen[identity] = true
		node := report.Nodes[identity]
		if node == nil {
			return
		}
		order = append(order, node)
		for _, edge := range node.Dependencies {
			walk(edge.TargetIdentity, depth+1)
		}
	}
	walk(report.RootIdentity, 0)

	for _, node := range order {
		indent := strings.Repeat("\t", node.Depth)
		if node.Kind == depgraph.KindMissing {
			fmt.Printf("%s%s => not found\n", indent, node.RequestedName)
			continue
		}
		fmt.Printf("%s%s => %s\n", indent, node.RequestedName, node.Identity)
	}
}

func runVerify(cmd *cobra.Command, args []string) {
	ctx := buildContext(args[0])
	ctx.CheckSymbols = true
	r := resolver.New(ctx)
	report, err := r.Resolve()
	if err != nil {
		logger.Errorf("resolve failed: %v", err)
		os.Exit(1)
	}
	mismatches := symcheck.Check(report)

	var missing []string
	for _, n := range report.Nodes {
		if n.Kind == depgraph.KindMissing {
			missing = append(missing, n.RequestedName)
		}
	}
	sort.Strings(missing)

	for _, m := range missing {
		fmt.Printf("missing: %s\n", m)
	}
	for _, m := range mismatches {
		fmt.Printf("mismatch: %s imports %s from %s but it is not exported\n",
			m.ImporterIdentity, m.Symbol.Key(), m.ExporterIdentity)
	}

	switch {
	case len(missing) > 0:
		os.Exit(2)
	case len(mismatches) > 0:
		os.Exit(3)
	default:
		os.Exit(0)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "depwalk",
		Short: "Emulates the Windows loader's DLL resolution without executing the binary",
		Long:  "depwalk walks the transitive dependency graph of a PE executable or DLL, resolving each import the way the Windows loader's search-path precedence would, and optionally reconciles imported symbols against what each resolved library actually exports.",
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve the dependency graph of a PE file and print it as JSON",
		Args:  cobra.ExactArgs(1),
		Run:   runResolve,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <path>",
		Short: "Resolve and print only missing dependencies and symbol mismatches",
		Args:  cobra.ExactArgs(1),
		Run:   runVerify,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("depwalk 0.1.0")
		},
	}

	for _, c := range []*cobra.Command{resolveCmd, verifyCmd} {
		c.Flags().StringSliceVar(&userPath, "user-path", nil, "supplementary search directories, in order")
		c.Flags().StringVar(&apiSetFile, "api-set", "", "TOML snapshot of the API-Set map and KnownDLLs set")
		c.Flags().StringVar(&systemDir, "system-dir", "", "system directory analogue (defaults to ./System32)")
		c.Flags().BoolVar(&skipSystem, "skip-system-dirs", false, "do not search system directories")
		c.Flags().IntVar(&maxDepth, "max-depth", 0, "cap traversal depth (0 = unbounded)")
		c.Flags().StringVar(&filterPattern, "filter", "", "retain only nodes on a path to a name matching this glob/substring")
		c.Flags().BoolVar(&checkSymbols, "check-symbols", false, "reconcile imports against resolved exports")
	}
	resolveCmd.Flags().BoolVar(&lddStyle, "ldd", false, "print ldd-compatible output instead of JSON")

	rootCmd.AddCommand(versionCmd, resolveCmd, verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
