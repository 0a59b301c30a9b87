// Package util provides common utility functions and data structures
//
// This package includes a generic set implementation and bounded-string
// helpers used throughout the observability pipeline
package util
