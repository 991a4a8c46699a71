package main

import (
	"fmt"

	"go.uber.org/zap"

	"unluajit/internal/bytecode"
)

func parseVersion(s string) (bytecode.Version, error) {
	switch s {
	case "2.0":
		return bytecode.V20, nil
	case "", "2.1":
		return bytecode.V21, nil
	}
	return 0, fmt.Errorf("unsupported bytecode version %q (want 2.0 or 2.1)", s)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
