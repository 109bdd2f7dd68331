// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"toyir/internal/errors"
	"toyir/internal/ir"
	"toyir/internal/llvm"
	"toyir/internal/samples"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run builds the requested sample and writes the module to stdout. Status
// lines and diagnostics go to stderr so stdout holds only the module.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("toyir", flag.ContinueOnError)
	flags.SetOutput(stderr)
	scenario := flags.String("scenario", "straight", "sample to build ("+strings.Join(samples.Names(), ", ")+")")
	format := flags.String("format", "text", "output format: text or llvm")
	cfg := flags.Bool("cfg", false, "print the control flow graph after the module (text format only)")
	list := flags.Bool("list", false, "list the available samples and exit")
	verbose := flags.Int("v", 0, "log verbosity (0 = quiet, 1 = info, 2 = debug)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	commonlog.Configure(*verbose, nil)

	if *list {
		for _, name := range samples.Names() {
			fmt.Fprintf(stdout, "%-10s %s\n", name, samples.GetSampleDefinition(name).Description)
		}
		return 0
	}

	if *format != "text" && *format != "llvm" {
		fmt.Fprintf(stderr, "unknown format %q (want text or llvm)\n", *format)
		return 1
	}

	def := samples.GetSampleDefinition(*scenario)
	if def == nil {
		fmt.Fprintf(stderr, "unknown sample %q (available: %s)\n", *scenario, strings.Join(samples.Names(), ", "))
		return 1
	}

	startTime := time.Now()

	ctx, err := ir.BuildModule(def.Module, def.Build)
	errorReporter := errors.NewErrorReporter(def.Module)
	if err != nil {
		fmt.Fprint(stderr, errorReporter.Format(err))
		color.New(color.FgRed).Fprintf(stderr, "Construction failed after %s\n", formatDuration(time.Since(startTime)))
		return 1
	}

	var output string
	switch *format {
	case "llvm":
		output, err = llvm.Print(ctx)
		if err != nil {
			fmt.Fprint(stderr, errorReporter.Format(err))
			color.New(color.FgRed).Fprintf(stderr, "Export failed after %s\n", formatDuration(time.Since(startTime)))
			return 1
		}
	default:
		output = ir.PrintModule(ctx)
		if *cfg {
			output += ir.PrintCFG(ctx)
		}
	}

	duration := time.Since(startTime)
	fmt.Fprint(stdout, output)
	color.New(color.FgGreen).Fprintf(stderr, "Successfully built %s in %s\n", def.Name, formatDuration(duration))
	return 0
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
