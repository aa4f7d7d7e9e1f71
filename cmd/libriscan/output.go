package main

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

func printOut(w io.Writer, data any) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(data)
}
