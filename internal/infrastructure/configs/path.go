package configs

import (
	"os"
)

// DetermineConfigPath returns the first config file found, preferring the
// explicit flag value and then BOOKINGSYNC_CONFIG. An empty result means the
// client runs on defaults and environment overrides only.
func DetermineConfigPath(flagValue string) string {
	configPath := flagValue

	if configPath == "" {
		configPath = os.Getenv("BOOKINGSYNC_CONFIG")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"../../config.yaml", // keep for local dev
			"/etc/bookingsync/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
