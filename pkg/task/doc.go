// Package task models the parameters of a single task invocation and the
// secret access declaration that decides which keys may be served from the
// secret store instead of plain parameters.
package task
