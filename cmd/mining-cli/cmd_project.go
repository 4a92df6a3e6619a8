package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage workgroup projects",
	}
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectNameCmd())
	cmd.AddCommand(projectExistsCmd())
	cmd.AddCommand(projectDeleteCmd())
	cmd.AddCommand(projectUnarchiveCmd())
	cmd.AddCommand(projectResetCmd())
	cmd.AddCommand(projectVariantsCmd())
	cmd.AddCommand(projectCasesCmd())
	cmd.AddCommand(projectLookupsCmd())
	return cmd
}

type projectRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			projects, err := apiClient.Projects(ctx)
			if err != nil {
				return err
			}

			rows := make([]projectRow, 0, len(projects))
			ids := make([]string, 0, len(projects))
			for _, p := range projects {
				name, err := p.Name(ctx)
				if err != nil {
					return err
				}
				rows = append(rows, projectRow{ID: p.ID, Name: name})
				ids = append(ids, p.ID)
			}

			return output(rows, func() {
				cells := make([][]string, 0, len(rows))
				for _, r := range rows {
					cells = append(cells, []string{r.ID, r.Name})
				}
				formatTable([]string{"ID", "NAME"}, cells)
			}, ids...)
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := apiClient.CreateProject(commandContext(cmd), args[0], description)
			if err != nil {
				return err
			}
			return output(projectRow{ID: p.ID, Name: args[0]}, nil, p.ID)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	return cmd
}

func projectNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <project-id>",
		Short: "Show a project's name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := apiClient.Project(args[0]).Name(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(projectRow{ID: args[0], Name: name}, nil, name)
		},
	}
}

func projectExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <project-id>",
		Short: "Check whether a project exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := apiClient.Project(args[0]).Exists(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(map[string]bool{"exists": ok}, nil, strconv.FormatBool(ok))
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Project(args[0]).Delete(commandContext(cmd)); err != nil {
				return err
			}
			return output(map[string]string{"deleted": args[0]}, nil, args[0])
		},
	}
}

func projectUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <project-id>",
		Short: "Unarchive a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Project(args[0]).Unarchive(commandContext(cmd)); err != nil {
				return err
			}
			return output(map[string]string{"unarchived": args[0]}, nil, args[0])
		},
	}
}

func projectResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <project-id>",
		Short: "Drop a project's data and column mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Project(args[0]).Reset(commandContext(cmd)); err != nil {
				return err
			}
			return output(map[string]string{"reset": args[0]}, nil, args[0])
		},
	}
}

func projectVariantsCmd() *cobra.Command {
	var (
		page, limit int
		search      string
	)
	cmd := &cobra.Command{
		Use:   "variants <project-id>",
		Short: "List a page of process variants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := apiClient.Project(args[0]).Variants(commandContext(cmd), page, limit, search)
			if err != nil {
				return err
			}
			return output(doc, nil, doc.String("total"))
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page index")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")
	cmd.Flags().StringVar(&search, "search", "", "Filter variants by name")
	return cmd
}

func projectCasesCmd() *cobra.Command {
	var (
		page, limit int
		caseID      string
	)
	cmd := &cobra.Command{
		Use:   "cases <project-id>",
		Short: "List a page of completed cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := apiClient.Project(args[0]).CompletedCases(commandContext(cmd), page, limit, caseID)
			if err != nil {
				return err
			}
			return output(doc, nil, doc.String("total"))
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page index")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")
	cmd.Flags().StringVar(&caseID, "case-id", "", "Filter by case id")
	return cmd
}

func projectLookupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookups <project-id>",
		Short: "Show a project's lookup tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := apiClient.Project(args[0]).Lookups(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(raw, nil, fmt.Sprintf("%d bytes", len(raw)))
		},
	}
}
