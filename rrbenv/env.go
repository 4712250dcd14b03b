// Package rrbenv is an optional convenience for sourcing backend connection
// settings from the process environment. The broker's core (spec §1) treats
// backend connection configuration as an external collaborator; this
// package is not required by any broker component, it exists only for
// callers who want the teacher repo's getEnvOrDefault/isValidHostPort
// validation idiom instead of wiring redis.Options by hand.
package rrbenv

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// FromEnv builds *redis.Options from REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
// and RRB_PREFIX. REDIS_ADDR defaults to "localhost:6379" with a warning
// logged by the caller (FromEnv itself stays silent — logging policy is the
// caller's, per the broker's pluggable Logger).
func FromEnv() (opts *redis.Options, prefix string, err error) {
	addr := getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	if !isValidHostPort(addr) {
		return nil, "", fmt.Errorf("rrbenv: REDIS_ADDR must be in format 'host:port' (got %q)", addr)
	}

	db := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, "", fmt.Errorf("rrbenv: REDIS_DB must be an integer (got %q): %w", raw, convErr)
		}
		db = n
	}

	prefix = getEnvOrDefault("RRB_PREFIX", "rrb:")

	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, prefix, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func getEnvOrDefault(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}
