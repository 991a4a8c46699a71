package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "decompile":
		err = cmdDecompile(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "batch":
		err = cmdBatch(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `unluajit — LuaJIT bytecode decompiler

Usage:
  unluajit decompile --in <file> [--out <file>] [--diags-out <dir>]
  unluajit disasm    --in <file> [--fn <n>] [--out <dir>]
  unluajit graph     --in <file> --out <dir> [--calls]
  unluajit batch     --in <dir> --out <dir> [--jobs <n>]

Common flags:
  --version <2.0|2.1>   bytecode format version (default 2.1)
  --verbose             debug logging to stderr
`)
}
