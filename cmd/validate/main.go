// Command validate checks per-night S/N logs for integrity problems before
// they are plotted or shared: malformed lines, non-positive exposures,
// duplicate records left by appended re-crawls, and legacy sentinel
// magnitudes that would be plotted as real data.
//
// Usage:
//
//	go run ./cmd/validate -perdiems ../perdiem
//	go run ./cmd/validate ../perdiem/nres01-20171128.txt
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// logPattern matches per-night logs such as nres01-20171128.txt.
const logPattern = "nres*-*.txt"

func main() {
	perdiems := flag.String("perdiems", "", "directory of per-night logs to validate")
	allowSentinels := flag.Bool("allow-sentinels", false, "accept legacy 0 and 99 magnitudes")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		if *perdiems == "" {
			flag.Usage()
			os.Exit(1)
		}
		matches, err := filepath.Glob(filepath.Join(*perdiems, logPattern))
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: glob logs: %v\n", err)
			os.Exit(1)
		}
		sort.Strings(matches)
		paths = matches
	}

	if code := run(paths, *allowSentinels); code != 0 {
		os.Exit(code)
	}
}

func run(paths []string, allowSentinels bool) int {
	fmt.Println("=== NRES S/N Log Validation ===")
	fmt.Println()

	if len(paths) == 0 {
		fmt.Println("No per-night logs found.")
		return 1
	}

	var files []logFile
	for _, path := range paths {
		f, err := loadLog(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", path, err)
			return 1
		}
		files = append(files, f)
	}

	phases := []*phase{
		validateFormat(files),
		validateExposures(files),
		validateDuplicates(files),
		validateMagnitudes(files, allowSentinels),
	}

	fmt.Println(summaryTable(files))
	fmt.Println()
	fmt.Println(phaseTable(phases))

	allPassed := true
	for _, p := range phases {
		if p.passed() {
			continue
		}
		allPassed = false
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func summaryTable(files []logFile) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Log", "Records", "Unresolved", "Malformed"})
	for _, f := range files {
		tw.AppendRow(table.Row{filepath.Base(f.path), len(f.records), f.unresolved(), len(f.malformed)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}

func phaseTable(phases []*phase) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Check", "Result"})
	for _, p := range phases {
		status := text.FgGreen.Sprint("PASS")
		if !p.passed() {
			status = text.FgRed.Sprintf("FAIL (%d errors)", len(p.errors))
		}
		tw.AppendRow(table.Row{p.name, status})
	}
	return tw.Render()
}
