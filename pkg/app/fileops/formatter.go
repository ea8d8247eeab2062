package fileops

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes an operation result in the requested format
func FormatOutput(w io.Writer, result *Result, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(result)
	case "table":
		return formatText(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatText(w io.Writer, r *Result) error {
	var err error
	switch r.Action {
	case ActionFormat:
		_, err = fmt.Fprintf(w, "Formatted: %d erased blocks, %d bad blocks\n", r.Erased, r.Bad)
	case ActionMkdir:
		_, err = fmt.Fprintf(w, "Created %s\n", r.Path)
	case ActionPut:
		_, err = fmt.Fprintf(w, "%s -> %s (%d bytes)\n", r.Host, r.Path, r.Bytes)
	case ActionGet:
		_, err = fmt.Fprintf(w, "%s -> %s (%d bytes)\n", r.Path, r.Host, r.Bytes)
	case ActionRemove:
		_, err = fmt.Fprintf(w, "Removed %s\n", r.Path)
	default:
		err = fmt.Errorf("unknown action: %s", r.Action)
	}
	return err
}
