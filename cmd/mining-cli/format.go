package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// dotWriter is implemented by graphs that can render themselves as Graphviz DOT.
type dotWriter interface {
	WriteDOT(w io.Writer) error
}

func formatJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = fmt.Sprintf("%-*s", w, cell)
		}
		fmt.Println(strings.Join(parts, "  "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

func formatQuiet(values ...string) {
	for _, v := range values {
		fmt.Println(v)
	}
}

// output renders v in the selected format. table is used for --format table
// when non-nil; dot renders --format dot when v can be drawn.
func output(v any, table func(), quiet ...string) error {
	switch flagFmt {
	case "quiet":
		formatQuiet(quiet...)
		return nil
	case "table":
		if table != nil {
			table()
			return nil
		}
		return formatJSON(v)
	case "dot":
		d, ok := v.(dotWriter)
		if !ok {
			return fmt.Errorf("--format dot is only supported for graphs")
		}
		return d.WriteDOT(os.Stdout)
	case "json", "":
		return formatJSON(v)
	default:
		return fmt.Errorf("unknown format %q (json|table|quiet|dot)", flagFmt)
	}
}
