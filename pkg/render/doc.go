// Package render expands mail body templates with the Sprig function library.
// Plain bodies use text/template, HTML bodies use html/template so parameter
// values are escaped.
package render
