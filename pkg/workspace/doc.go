// Package workspace gives a task confined read access to its working
// directory: attachment bytes and template files.
package workspace
