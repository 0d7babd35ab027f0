// Package system holds process-level helpers shared by the CLI and tests,
// currently logger construction.
package system
