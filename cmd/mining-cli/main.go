package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/mining/client"
	"github.com/persistorai/mining/internal/config"
)

// Build-time variables set via ldflags.
var (
	commit    = ""
	buildDate = ""
)

var (
	apiClient *client.Client
	log       = logrus.New()

	flagAPIURL      string
	flagAuthURL     string
	flagWorkgroup   string
	flagKey         string
	flagProfile     string
	flagFmt         string
	flagLogLevel    string
	flagMetricsAddr string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("mining version %s (commit: %s, built: %s)", config.Version, commit, buildDate)
	}
	return fmt.Sprintf("mining version %s-dev", config.Version)
}

type configFile struct {
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	APIURL       string `yaml:"api_url"`
	AuthURL      string `yaml:"auth_url"`
	WorkgroupID  string `yaml:"workgroup_id"`
	WorkgroupKey string `yaml:"workgroup_key"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mining",
		Short:   "Mining CLI: projects, graphs, ingestion and predictions on the process mining platform",
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.LogLevel); err != nil {
				return err
			}
			if flagMetricsAddr != "" {
				serveMetrics(flagMetricsAddr)
			}
			apiClient = client.NewFromConfig(cfg, client.WithLogger(log))
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAPIURL, "api-url", "", "Platform API URL (env: MINING_API_URL)")
	pf.StringVar(&flagAuthURL, "auth-url", "", "OpenID realm URL (env: MINING_AUTH_URL)")
	pf.StringVar(&flagWorkgroup, "wg-id", "", "Workgroup id (env: MINING_WG_ID)")
	pf.StringVar(&flagKey, "wg-key", "", "Workgroup key (env: MINING_WG_KEY)")
	pf.StringVar(&flagProfile, "profile", "", "Config file profile (default: active_profile)")
	pf.StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet|dot")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (env: MINING_LOG_LEVEL)")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")

	initCmd := newInitCmd()
	initCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil } // skip client setup
	doctorCmd := newDoctorCmd()
	doctorCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil } // skip client setup

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newMappingCmd())
	rootCmd.AddCommand(newFileCmd())
	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newDatasourceCmd())
	rootCmd.AddCommand(newPredictionCmd())
	return rootCmd
}

// resolveConfig layers flags over the environment (and .env) over the config file.
func resolveConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if p, ok := loadProfile(flagProfile); ok {
		cfg.APIURL = firstNonEmpty(cfg.APIURL, p.APIURL)
		cfg.AuthURL = firstNonEmpty(cfg.AuthURL, p.AuthURL)
		cfg.WorkgroupID = firstNonEmpty(cfg.WorkgroupID, p.WorkgroupID)
		if cfg.WorkgroupKey.Value() == "" {
			cfg.WorkgroupKey = config.Secret(p.WorkgroupKey)
		}
	}

	cfg.APIURL = firstNonEmpty(flagAPIURL, cfg.APIURL)
	cfg.AuthURL = firstNonEmpty(flagAuthURL, cfg.AuthURL)
	cfg.WorkgroupID = firstNonEmpty(flagWorkgroup, cfg.WorkgroupID)
	if flagKey != "" {
		cfg.WorkgroupKey = config.Secret(flagKey)
	}
	cfg.LogLevel = firstNonEmpty(flagLogLevel, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mining", "config.yaml"), nil
}

func readConfigFile() (string, *configFile, error) {
	path, err := configPath()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return path, nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return path, nil, err
	}
	return path, &cfg, nil
}

// loadProfile returns the named profile, or the active one when name is empty.
// A missing or malformed config file yields no profile.
func loadProfile(name string) (configProfile, bool) {
	_, cfg, err := readConfigFile()
	if err != nil || cfg.Profiles == nil {
		return configProfile{}, false
	}
	if name == "" {
		name = cfg.ActiveProfile
	}
	if name == "" {
		name = "default"
	}
	p, ok := cfg.Profiles[name]
	return p, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics listener stopped")
		}
	}()
	log.WithField("addr", addr).Debug("serving metrics")
}

// commandContext returns the command's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
