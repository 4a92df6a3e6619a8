package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/mining/graph"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Process graphs and case instance graphs",
	}
	cmd.AddCommand(graphModelCmd())
	cmd.AddCommand(graphInstanceCmd())
	cmd.AddCommand(graphInstancesCmd())
	cmd.AddCommand(graphKeysCmd())
	return cmd
}

func graphModelCmd() *cobra.Command {
	var gateways bool
	cmd := &cobra.Command{
		Use:   "model <project-id>",
		Short: "Show the project's process graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := apiClient.Project(args[0]).Graph(commandContext(cmd), gateways)
			if err != nil {
				return err
			}
			return output(g, func() { vertexTable(g.Vertices) }, strconv.Itoa(len(g.Vertices)))
		},
	}
	cmd.Flags().BoolVar(&gateways, "gateways", false, "Include gateway vertices")
	return cmd
}

func graphInstanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instance <project-id> <process-key>",
		Short: "Show the graph of one case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gi, err := apiClient.Project(args[0]).GraphInstance(commandContext(cmd), args[1])
			if err != nil {
				return err
			}
			return output(gi, func() { instanceTable([]*graph.GraphInstance{gi}) },
				strconv.Itoa(gi.ReworkTotal))
		},
	}
}

func graphInstancesCmd() *cobra.Command {
	var (
		limit   int
		shuffle bool
	)
	cmd := &cobra.Command{
		Use:   "instances <project-id>",
		Short: "Fetch the graphs of many cases in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := apiClient.Project(args[0]).GraphInstances(commandContext(cmd), limit, shuffle)
			if err != nil {
				return err
			}
			return output(instances, func() { instanceTable(instances) }, strconv.Itoa(len(instances)))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max cases (0 for all)")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "Sample cases at random")
	return cmd
}

func graphKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <project-id>",
		Short: "List the project's process keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := apiClient.Project(args[0]).ProcessKeys(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(keys, func() {
				rows := make([][]string, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, []string{k})
				}
				formatTable([]string{"PROCESS KEY"}, rows)
			}, keys...)
		},
	}
}

func vertexTable(vertices []*graph.Vertex) {
	rows := make([][]string, 0, len(vertices))
	for _, v := range vertices {
		rows = append(rows, []string{v.ID, v.Name, string(v.Category)})
	}
	formatTable([]string{"ID", "NAME", "CATEGORY"}, rows)
}

func instanceTable(instances []*graph.GraphInstance) {
	rows := make([][]string, 0, len(instances))
	for _, gi := range instances {
		rate := "-"
		if gi.RateComputed() {
			rate = fmt.Sprintf("%.2f", gi.ConcurrencyRate)
		}
		rows = append(rows, []string{
			gi.ProcessKey,
			strconv.Itoa(len(gi.Vertices)),
			strconv.Itoa(len(gi.Edges)),
			strconv.Itoa(gi.ReworkTotal),
			rate,
		})
	}
	formatTable([]string{"KEY", "VERTICES", "EDGES", "REWORK", "CONCURRENCY"}, rows)
}
