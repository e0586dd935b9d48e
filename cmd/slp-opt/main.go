package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/dshills/slpvec/internal/passes"
	"github.com/dshills/slpvec/internal/slp"
	"github.com/dshills/slpvec/internal/verify"
)

func main() {
	var input string
	var output string
	var verbose bool
	var noDCE bool
	var check bool
	flag.StringVar(&input, "file", "", "LLVM IR (.ll) file to vectorize (reads from stdin if not provided)")
	flag.StringVar(&output, "o", "", "Output file (default: input file with .slp.ll extension, stdout for stdin input)")
	flag.BoolVar(&verbose, "verbose", false, "Print pass diagnostics")
	flag.BoolVar(&noDCE, "no-dce", false, "Skip the dead code elimination cleanup pass")
	flag.BoolVar(&check, "check", false, "Verify the module structurally after the pipeline")
	flag.Parse()

	if verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	module, err := parseInput(input)
	if err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}

	pass := slp.New()
	pass.Verbose = verbose
	pipeline := passes.NewManager().Add(pass)
	if !noDCE {
		pipeline.Add(passes.NewDCE())
	}
	changed := pipeline.RunOnModule(module)

	if check {
		if err := verify.New().VerifyModule(module); err != nil {
			color.Red("❌ %v", err)
			os.Exit(1)
		}
	}

	if err := writeOutput(input, output, module); err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}

	if changed {
		color.Green("✅ vectorized %s", describeInput(input))
	} else {
		fmt.Fprintf(os.Stderr, "no blocks changed in %s\n", describeInput(input))
	}
}

// parseInput reads textual IR from a file or stdin.
func parseInput(input string) (*ir.Module, error) {
	if input == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(err, "reading from stdin")
		}
		module, err := asm.ParseString("<stdin>", string(data))
		if err != nil {
			return nil, errors.Wrap(err, "parsing IR from stdin")
		}
		return module, nil
	}
	module, err := asm.ParseFile(input)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", input)
	}
	return module, nil
}

// writeOutput prints the module to the chosen destination.
func writeOutput(input, output string, module *ir.Module) error {
	if output == "" {
		if input == "" {
			fmt.Print(module.String())
			return nil
		}
		base := strings.TrimSuffix(input, filepath.Ext(input))
		output = base + ".slp.ll"
	}
	if err := os.WriteFile(output, []byte(module.String()), 0600); err != nil {
		return errors.Wrapf(err, "writing %s", output)
	}
	return nil
}

func describeInput(input string) string {
	if input == "" {
		return "stdin"
	}
	return input
}
