package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/tripwire/internal/eventbus"
)

// notifyHandler displays a desktop notification. The concrete toast
// backend (Windows Shell_NotifyIcon / WinRT ToastNotificationManager)
// is an out-of-scope external collaborator, so this implementation
// logs the notification at info level instead — an implementation-
// defined behavior on non-Windows per spec.md §4.4, and a visible
// stand-in rather than a silent no-op so dry runs and tests can still
// observe what would have been shown.
type notifyHandler struct {
	logger *slog.Logger
}

func newNotifyHandler(logger *slog.Logger) *notifyHandler {
	return &notifyHandler{logger: logger}
}

func (h *notifyHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	title, _ := params["title"].(string)
	message, _ := params["message"].(string)
	title = expandTemplate(title, ev)
	message = expandTemplate(message, ev)

	h.logger.Info("notify", "title", title, "message", message)
	return Result{Success: true, Message: fmt.Sprintf("%s: %s", title, message)}, nil
}
