// Package env reads deployment configuration from the process
// environment, kept near-verbatim from the teacher's helper of the
// same name and purpose.
package env

import "os"

// Str returns the environment variable named key, or fallback if unset
// or empty.
func Str(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
