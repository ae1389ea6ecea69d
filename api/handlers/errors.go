package handlers

import "log/slog"

// internalError logs the full error internally and returns a user-safe
// message. The returned message does not contain credentials, hostnames, or
// query details.
func internalError(operation string, err error) string {
	slog.Error(operation, "error", err)
	return operation
}
