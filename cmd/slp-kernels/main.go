package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"github.com/dshills/slpvec/internal/kernels"
	"github.com/dshills/slpvec/internal/passes"
	"github.com/dshills/slpvec/internal/slp"
)

func main() {
	var name string
	var vectorize bool
	var verbose bool
	var list bool
	flag.StringVar(&name, "kernel", "", "Kernel to emit (see -list)")
	flag.BoolVar(&vectorize, "vectorize", false, "Run the SLP pipeline before printing")
	flag.BoolVar(&verbose, "verbose", false, "Print pass diagnostics")
	flag.BoolVar(&list, "list", false, "List the built-in kernels")
	flag.Parse()

	if list {
		for _, k := range kernels.All() {
			fmt.Printf("%-12s %s\n", k.Name, k.Description)
		}
		return
	}
	if name == "" {
		fmt.Fprintln(os.Stderr, "usage: slp-kernels -kernel <name> [-vectorize] [-verbose]")
		os.Exit(2)
	}

	if verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	module, err := kernels.Build(name)
	if err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}

	if vectorize {
		pass := slp.New()
		pass.Verbose = verbose
		changed := passes.NewManager().Add(pass).Add(passes.NewDCE()).RunOnModule(module)
		if !changed {
			fmt.Fprintf(os.Stderr, "kernel %s was not transformed\n", name)
		}
	}

	fmt.Print(module.String())
}
