package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes an inspection response in the requested format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		if response.IsListing() {
			return formatListing(w, response)
		}
		return formatSummary(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatSummary prints the volume summary as key/value rows
func formatSummary(w io.Writer, response *Response) error {
	info := response.Volume
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Session:\t%s\n", info.Session)
	fmt.Fprintf(tw, "Geometry:\t%d blocks x %d pages x %d bytes\n",
		info.Geometry.TotalBlocks, info.Geometry.PagesPerBlock, info.Geometry.PageDataSize)
	fmt.Fprintf(tw, "Directories:\t%d\n", info.Tree.Dirs)
	fmt.Fprintf(tw, "Files:\t%d\n", info.Tree.Files)
	fmt.Fprintf(tw, "Data blocks:\t%d\n", info.Tree.Data)
	fmt.Fprintf(tw, "Erased blocks:\t%d\n", info.Tree.Erased)
	fmt.Fprintf(tw, "Bad blocks:\t%d\n", info.Tree.Bad)
	fmt.Fprintf(tw, "Max serial:\t%d\n", info.Tree.MaxSerial)
	fmt.Fprintf(tw, "Buffers:\t%d (%d free, %d dirty)\n", info.Pool.Buffers, info.Pool.Free, info.Pool.Dirty)
	fmt.Fprintf(tw, "Buffer hits/misses:\t%d/%d\n", info.Pool.Hits, info.Pool.Misses)
	fmt.Fprintf(tw, "Block info cache:\t%d entries, %.0f%% hit rate\n", info.Cache.Entries, info.Cache.HitRate*100)
	if info.Device != nil {
		fmt.Fprintf(tw, "Device I/O:\t%d reads, %d writes, %d erases\n",
			info.Device.PageReads, info.Device.PageWrites, info.Device.BlockErases)
	}
	return tw.Flush()
}

// formatListing prints directory entries as a table
func formatListing(w io.Writer, response *Response) error {
	if len(response.Entries) == 0 {
		_, err := fmt.Fprintf(w, "%s is empty.\n", response.Path)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "PATH\tTYPE\tSIZE\tSERIAL\tBLOCK\tEXTENTS\tCREATED\n")
	fmt.Fprintf(tw, "----\t----\t----\t------\t-----\t-------\t-------\n")
	for _, e := range response.Entries {
		kind, size := "file", FormatSize(uint64(e.Size))
		if e.IsDirectory {
			kind, size = "dir", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Path, kind, size, e.Serial, e.Block, e.Extents, e.CreatedTime.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d entries, %s\n", len(response.Entries), FormatSize(response.TotalBytes))
	return err
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}
