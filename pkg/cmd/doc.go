// Package cmd implements the mailtask command line: send runs one mail task
// invocation, check-config validates the system configuration and version
// prints build metadata.
package cmd
