// Package logging provides opt-in file-based logging with rotation for the
// vector database server. When --debug is set, comprehensive structured
// logs are written to ~/.vectordb/logs/ for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
package logging
