package config

import "go.uber.org/zap"

const defaultSessionSecret = "change-me-in-production-32bytes!"

// ProductionWarnings returns the list of insecure settings that must not ship
// to production.
func (c *Config) ProductionWarnings() []string {
	var warnings []string

	if c.SessionSecret == defaultSessionSecret {
		warnings = append(warnings, "session_secret is the built-in default; session tokens are forgeable")
	}
	if len(c.SessionSecret) < 32 {
		warnings = append(warnings, "session_secret is shorter than 32 bytes")
	}
	if c.AdminAPIToken == "" {
		warnings = append(warnings, "admin_api_token is empty; the tenant admin API rejects all requests")
	}
	if c.CORSAllowedOrigins == "*" {
		warnings = append(warnings, "cors_allowed_origins is a wildcard")
	}

	return warnings
}

// LogSecurityWarnings logs actionable security warnings when running in
// production with insecure defaults. Call this at service startup after
// configuration is loaded.
func (c *Config) LogSecurityWarnings(log *zap.Logger) {
	if !c.IsProduction() {
		return
	}

	warnings := c.ProductionWarnings()

	for _, w := range warnings {
		log.Warn("SECURITY", zap.String("warning", w))
	}

	if len(warnings) > 0 {
		log.Warn("SECURITY: production deployment has insecure configuration",
			zap.Int("warning_count", len(warnings)))
	}
}
