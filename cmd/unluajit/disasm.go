package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"unluajit/internal/bytecode"
	"unluajit/internal/output"
)

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	in := fs.String("in", "", "path to compiled bytecode")
	out := fs.String("out", "", "directory for the listing (default stdout)")
	version := fs.String("version", "2.1", "bytecode format version")
	fn := fs.Int("fn", -1, "dump only this function index")
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

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	dump, err := bytecode.ParseDump(data, v)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- %s  (%s%s)\n", dump.ChunkName, v, strippedNote(dump))
	for i, p := range dump.Protos {
		if *fn >= 0 && i != *fn {
			continue
		}
		code, err := bytecode.DecodeCode(p, v)
		if err != nil {
			fmt.Fprintf(&sb, "\nfunction %d: %v\n", i, err)
			continue
		}
		fmt.Fprintf(&sb, "\nfunction %d  (params=%d frame=%d line=%d)\n",
			i, p.NumParams, p.FrameSize, p.FirstLine)
		sb.WriteString(bytecode.Format(p, code))
	}

	if *out != "" {
		name := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
		return output.WriteListing(*out, name, sb.String())
	}
	fmt.Print(sb.String())
	return nil
}

func strippedNote(d *bytecode.Dump) string {
	if d.Stripped() {
		return ", stripped"
	}
	return ""
}
