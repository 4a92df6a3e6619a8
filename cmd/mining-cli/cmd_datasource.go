package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/mining/client"
)

var datasourceKinds = map[string]client.DatasourceKind{
	"vertex": client.KindVertex,
	"edge":   client.KindEdge,
	"cases":  client.KindCases,
}

func parseKind(s string) (client.DatasourceKind, error) {
	k, ok := datasourceKinds[s]
	if !ok {
		return "", fmt.Errorf("datasource kind must be vertex, edge or cases, got %q", s)
	}
	return k, nil
}

func newDatasourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasource",
		Aliases: []string{"ds"},
		Short:   "Query project datasources with read-only SQL",
	}
	cmd.AddCommand(datasourceListCmd())
	cmd.AddCommand(datasourceColumnsCmd())
	cmd.AddCommand(datasourceLoadCmd())
	cmd.AddCommand(datasourceQueryCmd())
	return cmd
}

type datasourceRow struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Host string `json:"host"`
	Port string `json:"port"`
}

func datasourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [project-id]",
		Short: "List datasources of one project, or of the whole workgroup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			var sources []*client.Datasource
			if len(args) == 0 {
				all, err := apiClient.Datasources(ctx)
				if err != nil {
					return err
				}
				sources = all
			} else {
				p := apiClient.Project(args[0])
				for _, kind := range []client.DatasourceKind{client.KindVertex, client.KindEdge, client.KindCases} {
					ds, err := p.Datasource(ctx, kind)
					if err != nil {
						return err
					}
					sources = append(sources, ds)
				}
			}

			rows := make([]datasourceRow, 0, len(sources))
			names := make([]string, 0, len(sources))
			for _, ds := range sources {
				rows = append(rows, datasourceRow{Name: ds.Name, Kind: string(ds.Kind), Host: ds.Host, Port: ds.Port})
				names = append(names, ds.Name)
			}
			return output(rows, func() {
				cells := make([][]string, 0, len(rows))
				for _, r := range rows {
					cells = append(cells, []string{r.Name, r.Kind, r.Host, r.Port})
				}
				formatTable([]string{"NAME", "KIND", "HOST", "PORT"}, cells)
			}, names...)
		},
	}
}

func openDatasource(cmd *cobra.Command, projectID, kind string) (*client.Datasource, error) {
	k, err := parseKind(kind)
	if err != nil {
		return nil, err
	}
	return apiClient.Project(projectID).Datasource(commandContext(cmd), k)
}

func datasourceColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <project-id> <vertex|edge|cases>",
		Short: "List a datasource's columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatasource(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			cols, err := ds.Columns(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(cols, nil, cols...)
		},
	}
}

func datasourceLoadCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "load <project-id> <vertex|edge|cases>",
		Short: "Dump a datasource's rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatasource(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			t, err := ds.Load(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			return outputTable(t)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Max rows (0 for all)")
	return cmd
}

func datasourceQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <project-id> <vertex|edge|cases> <sql>",
		Short: "Run a read-only SQL statement",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatasource(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			t, err := ds.Query(commandContext(cmd), args[2])
			if err != nil {
				return err
			}
			return outputTable(t)
		},
	}
}

func outputTable(t *client.Table) error {
	return output(t, func() {
		rows := make([][]string, 0, len(t.Rows))
		for _, r := range t.Rows {
			cells := make([]string, 0, len(r))
			for _, v := range r {
				cells = append(cells, fmt.Sprint(v))
			}
			rows = append(rows, cells)
		}
		formatTable(t.Columns, rows)
	}, strconv.Itoa(len(t.Rows)))
}
