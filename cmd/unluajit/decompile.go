package main

import (
	"flag"
	"fmt"
	"os"

	"unluajit/internal/output"
	"unluajit/internal/pipeline"
)

func cmdDecompile(args []string) error {
	fs := flag.NewFlagSet("decompile", flag.ExitOnError)
	in := fs.String("in", "", "path to compiled bytecode")
	out := fs.String("out", "", "output file (default stdout)")
	version := fs.String("version", "2.1", "bytecode format version")
	jobs := fs.Int("jobs", 1, "concurrent function decompilation")
	verbose := fs.Bool("verbose", false, "debug logging")
	showDiags := fs.Bool("diags", false, "print diagnostics to stderr")
	diagsOut := fs.String("diags-out", "", "directory for a diags.json report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	v, err := parseVersion(*version)
	if err != nil {
		return err
	}
	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	res, err := pipeline.Decompile(data, pipeline.Options{Version: v, Jobs: *jobs, Logger: log})
	if err != nil {
		return fmt.Errorf("decompile: %w", err)
	}

	if *showDiags {
		for _, d := range res.Diags {
			fmt.Fprintln(os.Stderr, d)
		}
	}
	if *diagsOut != "" {
		if err := output.WriteDiagsJSON(*diagsOut, res.Diags); err != nil {
			return err
		}
	}

	src := res.Source()
	if *out == "" {
		fmt.Print(src)
		return nil
	}
	return os.WriteFile(*out, []byte(src), 0644)
}
