package services

import (
	"log"
	"sync/atomic"
)

// Price check debug output; set from config.App.Debug (PRICECHECK_DEBUG) at startup
var priceCheckDebug atomic.Bool

// SetDebug toggles per-item debug logging
func SetDebug(enabled bool) {
	if enabled && !priceCheckDebug.Load() {
		log.Println("[PRICECHECK] Debug logging: ENABLED")
	}
	priceCheckDebug.Store(enabled)
}

// DebugEnabled reports whether per-item debug logging is on
func DebugEnabled() bool {
	return priceCheckDebug.Load()
}

// debugLog is for per-item detail: parse results, query bodies, cache hits
func debugLog(format string, args ...any) {
	if priceCheckDebug.Load() {
		log.Printf("[PRICECHECK DEBUG] "+format, args...)
	}
}

// infoLog is for events worth keeping in production logs: tier fallbacks, upstream errors
func infoLog(format string, args ...any) {
	log.Printf("[PRICECHECK] "+format, args...)
}
