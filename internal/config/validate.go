package config

import (
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
)

func (c *Config) validateCredentials() error {
	if c.WorkgroupID == "" {
		return fmt.Errorf("MINING_WG_ID is required")
	}

	if c.WorkgroupKey.Value() == "" {
		return fmt.Errorf("MINING_WG_KEY is required")
	}

	return nil
}

func (c *Config) validateURLs() error {
	if c.APIURL == "" {
		return fmt.Errorf("MINING_API_URL is required")
	}

	if err := validateEndpoint("MINING_API_URL", c.APIURL); err != nil {
		return err
	}

	if c.AuthURL == "" {
		return fmt.Errorf("MINING_AUTH_URL is required")
	}

	return validateEndpoint("MINING_AUTH_URL", c.AuthURL)
}

// validateEndpoint requires scheme and host, and HTTPS for anything but loopback.
func validateEndpoint(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must include scheme and host, got %q", name, raw)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !isLocalhost(raw) {
			return fmt.Errorf("%s must use HTTPS for non-localhost hosts", name)
		}
	default:
		return fmt.Errorf("%s scheme must be http or https, got %q", name, u.Scheme)
	}

	return nil
}

func (c *Config) validateLogLevel() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("MINING_LOG_LEVEL: %w", err)
	}

	return nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
