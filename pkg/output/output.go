package output

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var formats = []string{FormatJSON, FormatYAML}

// ParseFormat returns the canonical name of a supported output format.
func ParseFormat(format string) (string, error) {
	if format == "yml" {
		return FormatYAML, nil
	}
	if !slices.Contains(formats, format) {
		return "", fmt.Errorf("unknown output format %q, expected one of %v", format, formats)
	}
	return format, nil
}

// Write renders v to w in the given format. JSON output is indented.
func Write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
