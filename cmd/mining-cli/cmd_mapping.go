package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/mining/client"
)

func newMappingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Column mappings of uploaded event logs",
	}
	cmd.AddCommand(mappingSetCmd())
	cmd.AddCommand(mappingGetCmd())
	cmd.AddCommand(mappingExistsCmd())
	cmd.AddCommand(mappingInfosCmd())
	cmd.AddCommand(mappingCheckCmd())
	return cmd
}

// readColumnMapping loads a keyed column mapping from a YAML or JSON file.
func readColumnMapping(path string) (*client.ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var keyed map[string]any
	if err := yaml.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	asJSON, err := json.Marshal(keyed)
	if err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return client.ParseColumnMapping(asJSON)
}

func mappingSetCmd() *cobra.Command {
	var (
		fileType  string
		delimiter string
		charset   string
		sheet     string
		noHeader  bool
	)
	cmd := &cobra.Command{
		Use:   "set <project-id> <mapping-file>",
		Short: "Set the column mapping from a YAML or JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readColumnMapping(args[1])
			if err != nil {
				return err
			}

			fs := client.NewFileStructure(client.FileType(strings.ToLower(fileType)))
			switch fs.FileType {
			case client.FileCSV, client.FileXLS, client.FileXLSX:
			default:
				return fmt.Errorf("--file-type must be csv, xls or xlsx, got %q", fileType)
			}
			if delimiter != "" {
				fs.Delimiter = delimiter
			}
			if charset != "" {
				fs.Charset = charset
			}
			fs.SheetName = sheet
			fs.Header = !noHeader

			if err := apiClient.Project(args[0]).AddColumnMapping(commandContext(cmd), fs, m); err != nil {
				return err
			}
			return output(map[string]any{"project": args[0], "columns": len(m.Columns())}, nil, args[0])
		},
	}
	cmd.Flags().StringVar(&fileType, "file-type", "csv", "File type: csv|xls|xlsx")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "CSV delimiter (default \",\")")
	cmd.Flags().StringVar(&charset, "charset", "", "File charset (default UTF-8)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet name for spreadsheets")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Files have no header row")
	return cmd
}

func mappingGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <project-id>",
		Short: "Show the project's column mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := apiClient.Project(args[0]).ColumnMapping(commandContext(cmd))
			if err != nil {
				return err
			}
			cols := m.Columns()
			return output(cols, func() { columnTable(cols) }, strconv.Itoa(len(cols)))
		},
	}
}

func mappingExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <project-id>",
		Short: "Check whether a column mapping is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := apiClient.Project(args[0]).ColumnMappingExists(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(map[string]bool{"exists": ok}, nil, strconv.FormatBool(ok))
		},
	}
}

func mappingInfosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infos <project-id>",
		Short: "Show mapping details reported by the platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := apiClient.Project(args[0]).MappingInfos(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(raw, nil, args[0])
		},
	}
}

// mappingCheckCmd validates a mapping file locally without a platform round trip.
func mappingCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <mapping-file>",
		Short: "Validate a column mapping file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readColumnMapping(args[0])
			if err != nil {
				return err
			}
			cols := m.Columns()
			return output(cols, func() { columnTable(cols) }, "ok")
		},
	}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil } // skip client setup
	return cmd
}

func columnTable(cols []client.Column) {
	sorted := append([]client.Column(nil), cols...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	rows := make([][]string, 0, len(sorted))
	for _, c := range sorted {
		detail := string(c.Aggregation)
		if c.Type == client.ColumnTime {
			detail = c.TimeFormat
		}
		rows = append(rows, []string{strconv.Itoa(c.Index), c.Name, string(c.Type), detail})
	}
	formatTable([]string{"INDEX", "NAME", "TYPE", "DETAIL"}, rows)
}
