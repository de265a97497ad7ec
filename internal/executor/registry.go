package executor

import "log/slog"

// defaultHandlers builds the standard action-kind registry. "script"
// is intentionally absent until SetScriptRunner wires the sandbox in.
func defaultHandlers(logger *slog.Logger) map[string]Handler {
	return map[string]Handler{
		"log":          newLogHandler(logger),
		"execute":      execHandler{},
		"powershell":   powershellHandler{},
		"http_request": newHTTPHandler(),
		"notify":       newNotifyHandler(logger),
		"media":        newMediaHandler(logger),
	}
}
