package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
)

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: gep-node archive <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import, get")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("archive "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	var outPath string
	if sub == "export" {
		fs.StringVar(&outPath, "out", "", "Bundle file (default stdout)")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	switch sub {
	case "export", "import", "get":
	default:
		fmt.Fprintf(errOut, "unknown archive subcommand: %s\n", sub)
		return 2
	}
	if sub != "export" && fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: gep-node archive %s <arg>\n", sub)
		return 2
	}

	cl, err := common.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "archive %s: %v\n", sub, err)
		return 2
	}
	defer cl.Close()

	switch sub {
	case "export":
		ids := fs.Args()
		if len(ids) == 0 {
			fmt.Fprintln(errOut, "archive export: name the asset_ids to export")
			return 2
		}
		if outPath == "" {
			if err := cl.archive.Export(out, ids...); err != nil {
				fmt.Fprintf(errOut, "archive export: %v\n", err)
				return 1
			}
			return 0
		}
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "archive export: %v\n", err)
			return 1
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		if err := cl.archive.Export(bw, ids...); err != nil {
			fmt.Fprintf(errOut, "archive export: %v\n", err)
			return 1
		}
		if err := bw.Flush(); err != nil {
			fmt.Fprintf(errOut, "archive export: %v\n", err)
			return 1
		}
		return 0
	case "import":
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "archive import: %v\n", err)
			return 1
		}
		defer f.Close()
		ids, err := cl.archive.Import(bufio.NewReader(f))
		for _, id := range ids {
			_, _ = fmt.Fprintln(out, id)
		}
		if err != nil {
			fmt.Fprintf(errOut, "archive import: %v\n", err)
			return 1
		}
		return 0
	default:
		a, err := cl.archive.Get(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "archive get: %v\n", err)
			return 1
		}
		printJSON(out, a)
		return 0
	}
}
