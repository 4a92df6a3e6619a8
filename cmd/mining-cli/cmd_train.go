package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Prediction model training",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <project-id>",
		Short: "Show whether training is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			running, err := apiClient.Project(args[0]).TrainStatus(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(map[string]bool{"isTrainRunning": running}, nil, strconv.FormatBool(running))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "launch <project-id>",
		Short: "Start training",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Project(args[0]).LaunchTrain(commandContext(cmd)); err != nil {
				return err
			}
			return output(map[string]string{"launched": args[0]}, nil, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop <project-id>",
		Short: "Stop training",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Project(args[0]).StopTrain(commandContext(cmd)); err != nil {
				return err
			}
			return output(map[string]string{"stopped": args[0]}, nil, args[0])
		},
	})
	return cmd
}
