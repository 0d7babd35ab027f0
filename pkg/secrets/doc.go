// Package secrets provides read access to task secrets from a YAML file, the
// process environment or the OS keyring, and scoping of secret keys to an
// operator namespace such as "mail".
package secrets
