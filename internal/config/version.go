package config

// Version is the SDK version reported in the User-Agent header and by the CLI.
// Set at build time via: -ldflags "-X github.com/persistorai/mining/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
