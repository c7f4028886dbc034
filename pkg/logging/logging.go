// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the structured loggers the controller services
// use. Output is JSON on the given writer, which matches what the log
// collectors in the deployment expect.
//
// # Basic Usage
//
//	logger := logging.New(os.Stdout)
//	slog.SetDefault(logger)
//	logger.Info("starting controller", "port", port)
//
// The log level is read from CONTROLLER_LOG_LEVEL (debug, info, warn,
// error) and defaults to info.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// envLevelVar names the environment variable that selects the level.
const envLevelVar = "CONTROLLER_LOG_LEVEL"

var lookupEnv = os.LookupEnv

// New returns a JSON slog.Logger writing to w, leveled from the
// environment.
func New(w io.Writer) *slog.Logger {
	return NewWithLevel(w, LevelFromEnv(lookupEnv))
}

// NewWithLevel returns a JSON slog.Logger writing to w at the given
// level.
func NewWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// LevelFromEnv resolves the configured level through lookup, which is
// os.LookupEnv in production. Unknown values fall back to info.
func LevelFromEnv(lookup func(string) (string, bool)) slog.Level {
	raw, ok := lookup(envLevelVar)
	if !ok {
		return slog.LevelInfo
	}
	return ParseLevel(raw)
}

// ParseLevel maps a level name to its slog.Level. Matching is
// case-insensitive; unknown names return info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
