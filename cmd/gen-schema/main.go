// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Command gen-schema generates the config file JSON Schema.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/taskmaster/taskmaster/internal/config"
)

func main() {
	outPath := pflag.StringP("output", "o", filepath.Join("schemas", "config.schema.json"), `output file, or "-" for stdout`)
	pflag.Parse()

	schema, err := config.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if *outPath == "-" {
		_, _ = os.Stdout.Write(append(schema, '\n'))
		return
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, append(schema, '\n'), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", *outPath)
}
