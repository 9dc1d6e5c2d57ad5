// Package log provides structured protocol capture for fieldbus endpoints.
//
// It is separate from operational logging (slog): protocol capture records a
// machine-readable trace of frames, decoded messages and state changes for
// debugging and offline analysis.
//
// # Basic Usage
//
//	// Console, via slog at debug level
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/fieldbus/client.flog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Transport: raw frames (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Service: connection, availability and subscription state (StateChangeEvent)
//
// # File Format
//
// Capture files are a sequence of CBOR-encoded events (.flog). The
// fieldbus-log tool views and summarizes them.
package log
