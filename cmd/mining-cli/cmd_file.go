package main

import (
	"github.com/spf13/cobra"
)

func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload event logs and inspect their ingestion",
	}
	cmd.AddCommand(fileAddCmd())
	cmd.AddCommand(fileListCmd())
	cmd.AddCommand(fileGetCmd())
	cmd.AddCommand(fileStatusCmd())
	return cmd
}

func fileAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <project-id> <path>...",
		Short: "Upload csv, xls, xlsx or zip event logs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			p := apiClient.Project(args[0])
			for _, path := range args[1:] {
				if err := p.AddFile(ctx, path); err != nil {
					return err
				}
			}
			return output(map[string]any{"project": args[0], "uploaded": args[1:]}, nil, args[1:]...)
		},
	}
}

func fileListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List uploaded files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := apiClient.Project(args[0]).FilesMetadata(commandContext(cmd), page, limit)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(files.Files))
			rows := make([][]string, 0, len(files.Files))
			for _, f := range files.Files {
				ids = append(ids, f.String("id"))
				rows = append(rows, []string{f.String("id"), f.String("name"), f.String("size")})
			}
			return output(files, func() { formatTable([]string{"ID", "NAME", "SIZE"}, rows) }, ids...)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page index")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")
	return cmd
}

func fileGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <project-id> <file-id>",
		Short: "Show an uploaded file's metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := apiClient.Project(args[0]).FileMetadata(commandContext(cmd), args[1])
			if err != nil {
				return err
			}
			return output(doc, nil, doc.String("name"))
		},
	}
}

func fileStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id> <file-id>",
		Short: "Show a file's ingestion status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := apiClient.Project(args[0]).FileIngestionStatus(commandContext(cmd), args[1])
			if err != nil {
				return err
			}
			return output(doc, nil, doc.String("status"))
		},
	}
}
