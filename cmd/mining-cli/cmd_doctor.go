package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/mining/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, token endpoint, and platform API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(commandContext(cmd))
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(ctx context.Context) error {
	fmt.Println("\nMining Doctor")
	fmt.Println("=============")

	var results []checkResult

	// 1. Config file. Optional: flags and environment may be enough.
	cfgPath, _, cfgErr := readConfigFile()
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("not found (%s), using flags and environment", cfgPath),
		})
	} else {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("found (%s)", cfgPath),
		})
	}

	// 2. Resolved settings, with the same precedence as every other command.
	cfg, err := resolveConfig()
	if err != nil {
		results = append(results, checkResult{
			Name: "Configuration", Passed: false,
			Detail: err.Error(),
			Hint:   "Set --api-url/--auth-url/--wg-id/--wg-key, MINING_* variables, or run mining init",
		})
		return printResults(results)
	}
	results = append(results, checkResult{
		Name: "Configuration", Passed: true,
		Detail: fmt.Sprintf("workgroup %s at %s", cfg.WorkgroupID, cfg.APIURL),
	})

	c := client.NewFromConfig(cfg, client.WithLogger(log))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 3. Token endpoint.
	if err := c.Login(ctx); err != nil {
		hint := fmt.Sprintf("Is %s reachable? Error: %v", cfg.AuthURL, err)
		if errors.Is(err, client.ErrInvalidCredentials) {
			hint = "Check your workgroup ID and key"
		}
		results = append(results, checkResult{Name: "Authentication", Passed: false, Hint: hint})
		return printResults(results)
	}
	results = append(results, checkResult{Name: "Authentication", Passed: true, Detail: "token issued"})

	// 4. Platform API.
	projects, err := c.Projects(ctx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Platform API", Passed: false,
			Detail: c.APIURL(),
			Hint:   fmt.Sprintf("Error: %v", err),
		})
	} else {
		results = append(results, checkResult{
			Name: "Platform API", Passed: true,
			Detail: fmt.Sprintf("%d projects", len(projects)),
		})
	}

	return printResults(results)
}

func printResults(results []checkResult) error {
	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println("✅ All checks passed!")
	return nil
}
