package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPredictionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prediction",
		Short: "Launch and follow predictions",
	}
	cmd.AddCommand(predictionPossibilityCmd())
	cmd.AddCommand(predictionLaunchCmd())
	cmd.AddCommand(predictionStatusCmd())
	cmd.AddCommand(predictionWaitCmd())
	cmd.AddCommand(predictionCancelCmd())
	return cmd
}

func parsePredictionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid prediction id %q: %w", s, err)
	}
	return id, nil
}

func predictionPossibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "possibility <project-id>",
		Short: "Check whether a prediction can be launched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pp, err := apiClient.Project(args[0]).PredictionPossibility(commandContext(cmd))
			if err != nil {
				return err
			}
			return output(map[string]string{"possibility": string(pp)}, nil, string(pp))
		},
	}
}

func predictionLaunchCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "launch <project-id> [case-id]...",
		Short: "Launch a prediction, optionally restricted to some cases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			p := apiClient.Project(args[0])
			id, err := p.LaunchPrediction(ctx, args[1:]...)
			if err != nil {
				return err
			}
			if wait <= 0 {
				return output(map[string]string{"predictionId": id.String()}, nil, id.String())
			}
			ws, err := p.WaitPrediction(ctx, id, wait)
			if err != nil {
				return err
			}
			return output(ws, nil, string(ws.Status))
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll at this interval until the prediction finishes")
	return cmd
}

func predictionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id> <prediction-id>",
		Short: "Show a prediction's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePredictionID(args[1])
			if err != nil {
				return err
			}
			ws, err := apiClient.Project(args[0]).PredictionStatus(commandContext(cmd), id)
			if err != nil {
				return err
			}
			return output(ws, nil, string(ws.Status))
		},
	}
}

func predictionWaitCmd() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait <project-id> <prediction-id>",
		Short: "Wait for a prediction to finish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePredictionID(args[1])
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			ws, err := apiClient.Project(args[0]).WaitPrediction(ctx, id, interval)
			if err != nil {
				return err
			}
			return output(ws, nil, string(ws.Status))
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	return cmd
}

func predictionCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <project-id> <prediction-id>",
		Short: "Cancel a running prediction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePredictionID(args[1])
			if err != nil {
				return err
			}
			if err := apiClient.Project(args[0]).CancelPrediction(commandContext(cmd), id); err != nil {
				return err
			}
			return output(map[string]string{"canceled": id.String()}, nil, id.String())
		},
	}
}
