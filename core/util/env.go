// Package util provides small utility functions shared by the daemon
// entrypoints.
package util

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Getenv retrieves an environment variable with a fallback value.
func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetenvInt retrieves an integer environment variable, falling back
// to fallback if the variable is unset or not a valid integer.
func GetenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.WithFields(log.Fields{"env_var": key, "value": value}).Warn("invalid integer environment variable, using fallback")
		return fallback
	}
	return n
}
