package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unluajit/internal/bytecode"
	"unluajit/internal/output"
	"unluajit/internal/pipeline"
)

// cmdBatch decompiles every bytecode file under a directory, mirroring the
// tree layout in the output directory.
func cmdBatch(args []string) error {
	fset := flag.NewFlagSet("batch", flag.ExitOnError)
	in := fset.String("in", "", "input directory")
	out := fset.String("out", "", "output directory")
	version := fset.String("version", "2.1", "bytecode format version")
	jobs := fset.Int("jobs", 4, "files processed concurrently")
	ext := fset.String("ext", ".lua", "input file extension to match")
	verbose := fset.Bool("verbose", false, "debug logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("--in and --out are required")
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

	var files []string
	err = filepath.WalkDir(*in, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, *ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files under %s", *ext, *in)
	}

	var g errgroup.Group
	g.SetLimit(*jobs)
	failed := make([]error, len(files))
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			failed[i] = batchOne(path, *in, *out, v, log)
			return nil
		})
	}
	_ = g.Wait()

	bad := 0
	for i, err := range failed {
		if err != nil {
			bad++
			fmt.Fprintf(os.Stderr, "%s: %v\n", files[i], err)
		}
	}
	fmt.Fprintf(os.Stderr, "decompiled %d/%d files\n", len(files)-bad, len(files))
	if bad > 0 {
		return fmt.Errorf("%d files failed", bad)
	}
	return nil
}

func batchOne(path, inRoot, outRoot string, v bytecode.Version, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := pipeline.Decompile(data, pipeline.Options{Version: v, Logger: log})
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(inRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return output.WriteLua(outRoot, rel, res.Source())
}
