// Package config loads the process-wide mailtask configuration from YAML:
// system mail defaults and SMTP endpoint, logging, audit sinks and metrics export.
package config
