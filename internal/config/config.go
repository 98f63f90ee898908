// Package config provides configuration helpers for go-courtside commands.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Defaults for the bridge server.
const (
	DefaultBridgeAddr = ":8090"
)

var (
	credOnce sync.Once
	cred     string
)

// Credential returns the realtime API key. It reads OPENAI_API_KEY first
// and falls back to an interactive prompt. The value is cached for the
// process lifetime and never persisted.
func Credential() string {
	credOnce.Do(func() {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cred = key
			return
		}
		fmt.Fprint(os.Stderr, "OpenAI API key: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			cred = strings.TrimSpace(scanner.Text())
		}
	})
	return cred
}

// CredentialRequired returns the API key or exits with a usage hint.
func CredentialRequired() string {
	key := Credential()
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: an OpenAI API key is required")
		fmt.Fprintln(os.Stderr, "Usage: OPENAI_API_KEY=sk-... go run ./cmd/...")
		os.Exit(1)
	}
	return key
}

// LogLevel returns the log level from LOG_LEVEL env var or "info".
func LogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// BridgeAddr returns the bridge listen address from BRIDGE_ADDR env var.
func BridgeAddr() string {
	if addr := os.Getenv("BRIDGE_ADDR"); addr != "" {
		return addr
	}
	return DefaultBridgeAddr
}
