package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/mining/client"
)

func newInitCmd() *cobra.Command {
	var skipCheck bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up Mining CLI configuration",
		Long:  "Interactive setup wizard that writes a profile to ~/.mining/config.yaml. Passing --api-url, --auth-url, --wg-id or --wg-key runs it non-interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := configProfile{
				APIURL:       flagAPIURL,
				AuthURL:      flagAuthURL,
				WorkgroupID:  flagWorkgroup,
				WorkgroupKey: flagKey,
			}
			nonInteractive := p != (configProfile{})
			if !nonInteractive {
				promptProfile(os.Stdin, &p)
			}
			return runInit(commandContext(cmd), p, firstNonEmpty(flagProfile, "default"), nonInteractive, skipCheck)
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Write the profile without testing the credentials")
	return cmd
}

func promptProfile(in io.Reader, p *configProfile) {
	fmt.Println("\n  Mining Setup")
	fmt.Println("  ────────────")
	fmt.Println()

	reader := bufio.NewReader(in)
	ask := func(label string) string {
		fmt.Printf("  %s: ", label)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}
	p.APIURL = ask("API URL")
	p.AuthURL = ask("Auth URL (realm)")
	p.WorkgroupID = ask("Workgroup ID")
	p.WorkgroupKey = ask("Workgroup key")
}

func runInit(ctx context.Context, p configProfile, profile string, nonInteractive, skipCheck bool) error {
	switch {
	case p.APIURL == "":
		return fmt.Errorf("API URL is required")
	case p.AuthURL == "":
		return fmt.Errorf("auth URL is required")
	case p.WorkgroupID == "" || p.WorkgroupKey == "":
		return fmt.Errorf("workgroup ID and key are required")
	}

	if !skipCheck {
		if !nonInteractive {
			fmt.Print("\n  Testing credentials... ")
		}
		n, err := testConnection(ctx, p)
		if err != nil {
			if !nonInteractive {
				fmt.Println("✗")
			}
			return fmt.Errorf("connection failed: %w", err)
		}
		if !nonInteractive {
			fmt.Printf("✓ Connected (%d projects)\n", n)
		}
	}

	cfgPath, err := writeConfig(profile, p)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if nonInteractive {
		fmt.Printf("Config saved to %s\n", cfgPath)
	} else {
		fmt.Printf("\n  ✓ Config saved to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("  Next steps:")
		fmt.Println("    mining doctor        # Full diagnostic check")
		fmt.Println("    mining project list  # See your projects")
		fmt.Println("    mining --help        # See all commands")
		fmt.Println()
	}
	return nil
}

// testConnection fetches a token and lists projects, returning the project count.
func testConnection(ctx context.Context, p configProfile) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c := client.New(p.APIURL, p.AuthURL, p.WorkgroupID, p.WorkgroupKey, client.WithLogger(log))
	if err := c.Login(ctx); err != nil {
		return 0, err
	}
	projects, err := c.Projects(ctx)
	if err != nil {
		return 0, err
	}
	return len(projects), nil
}

// writeConfig stores p under the given profile name, keeping other profiles,
// and makes it the active one.
func writeConfig(profile string, p configProfile) (string, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	cfg := configFile{}
	if _, existing, err := readConfigFile(); err == nil {
		cfg = *existing
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]configProfile)
	}
	cfg.Profiles[profile] = p
	cfg.ActiveProfile = profile

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}
	return cfgPath, nil
}
