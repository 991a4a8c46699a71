// Package output writes decompilation results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"unluajit/internal/diag"
)

// WriteLua writes decompiled source to <dir>/<name>.lua. name may contain
// path separators to mirror a batch input tree.
func WriteLua(dir, name, text string) error {
	return write(filepath.Join(dir, name+".lua"), text)
}

// WriteListing writes a bytecode listing to <dir>/listing/<name>.txt.
func WriteListing(dir, name, text string) error {
	return write(filepath.Join(dir, "listing", name+".txt"), text)
}

// WriteDOT writes a graph to <dir>/<name>.dot.
func WriteDOT(dir, name, dot string) error {
	return write(filepath.Join(dir, name+".dot"), dot)
}

// WriteDiagsJSON writes the run's diagnostics to <dir>/diags.json.
func WriteDiagsJSON(dir string, items []diag.Diag) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal diags: %w", err)
	}
	return write(filepath.Join(dir, "diags.json"), string(data))
}

func write(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0644)
}
