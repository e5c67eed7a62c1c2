/*
Package log provides structured logging for the storage engine using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("commitlog")               │          │
	│  │  - WithDatabaseID("db-abc123")               │          │
	│  │  - WithTableID(4096)                         │          │
	│  │  - WithReducerID(7)                          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "commitlog",                │          │
	│  │    "time": "2026-07-30T10:30:00Z",          │          │
	│  │    "message": "segment rolled over"          │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF segment rolled over component=commitlog │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every package in this module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add a package/subsystem name to all logs
  - WithDatabaseID: Add a database identifier
  - WithTableID: Add a table ID
  - WithReducerID: Add a reducer ID

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "Scanning index for range [10, 42)"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "Commit log segment rotated at offset 4096"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "Reducer call rolled back: precondition failed"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "Failed to commit transaction: index corruption detected"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "Failed to open commit log: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/spacetimedb-core/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/stdb.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("Engine started")
	log.Debug("Checking sequence allocation watermark")
	log.Warn("Reducer budget nearly exhausted")
	log.Error("Failed to open commit log segment")
	log.Fatal("Cannot start without a data directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("reducer", "add_player").
		Int64("budget_remaining", 128).
		Msg("Reducer call committed")

	log.Logger.Error().
		Err(err).
		Uint32("table_id", 4096).
		Msg("Insert failed")

Component Loggers:

	// Create component-specific logger
	clog := log.WithComponent("commitlog")
	clog.Info().Msg("Opening log directory")
	clog.Debug().Uint64("offset", 42).Msg("Appending commit")

	// Multiple context fields
	txLog := log.WithComponent("tx").
		With().Str("database_id", "db-abc").
		Uint32("table_id", 4096).Logger()
	txLog.Info().Msg("Beginning mutable transaction")
	txLog.Error().Err(err).Msg("Commit failed")

Context Logger Helpers:

	// Database-specific logs
	dbLog := log.WithDatabaseID("db-abc123")
	dbLog.Info().Msg("Database opened")

	// Table-specific logs
	tblLog := log.WithTableID(4096)
	tblLog.Info().Msg("Index rebuilt")

	// Reducer-specific logs
	reducerLog := log.WithReducerID(7)
	reducerLog.Info().Msg("Reducer call started")

Complete Example:

	package main

	import (
		"errors"
		"os"

		"github.com/cuemby/spacetimedb-core/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("stdb starting")

		// Component-specific logging
		engineLog := log.WithComponent("engine")
		engineLog.Info().
			Str("reducer", "add_player").
			Int("args_len", 12).
			Msg("Dispatching reducer call")

		// Error logging
		err := errors.New("commit failed")
		log.Logger.Error().
			Err(err).
			Str("component", "tx").
			Msg("Failed to commit transaction")

		log.Info("stdb stopped")
	}

# Integration Points

This package integrates with:

  - pkg/commitlog: logs offset-index and fsync failures
  - pkg/engine: logs reducer call dispatch, rejection, and failure
  - pkg/engine/reducerapi: logs the gRPC call boundary
  - cmd/stdb: initializes the global logger from CLI flags

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"engine","time":"2026-07-30T10:30:00Z","message":"Dispatching reducer call"}
	{"level":"info","component":"commitlog","offset":4096,"time":"2026-07-30T10:30:01Z","message":"Segment rotated"}
	{"level":"error","component":"tx","table_id":4096,"error":"unique constraint violation","time":"2026-07-30T10:30:02Z","message":"Insert failed"}

Console Format (Development):

	10:30:00 INF Dispatching reducer call component=engine
	10:30:01 INF Segment rotated component=commitlog offset=4096
	10:30:02 ERR Insert failed component=tx table_id=4096 error="unique constraint violation"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Security

Log Content:
  - Never log row payloads or decoded reducer arguments verbatim
  - Redact identity/credential bytes
  - Use typed fields for user-supplied data rather than string
    interpolation, to avoid log injection

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log raw row bytes or reducer arguments
  - Use Debug level in production
  - Log in tight loops (e.g. per-row during a table scan)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
