package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputOptions selects how command results are printed
type OutputOptions struct {
	Output string `short:"o" long:"output" description:"output format" choice:"text" choice:"json" choice:"yaml" default:"text"`
}

var stdout io.Writer = os.Stdout

// print writes v as JSON or YAML, or calls text for the text format
func (o OutputOptions) print(v interface{}, text func(w io.Writer)) error {
	switch o.Output {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "", "text":
		text(stdout)
		return nil
	}
	return fmt.Errorf("unknown output format %q", o.Output)
}
