package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/tripwire/internal/eventbus"
)

// mediaCommands is the closed set spec.md §6.1 lists for the media
// action's command field.
var mediaCommands = map[string]bool{"play": true, "pause": true, "toggle": true}

// mediaHandler sends a media-key event. The concrete backend
// (SendInput with VK_MEDIA_PLAY_PAUSE etc.) is an out-of-scope
// external collaborator; this logs the requested command instead.
type mediaHandler struct {
	logger *slog.Logger
}

func newMediaHandler(logger *slog.Logger) *mediaHandler {
	return &mediaHandler{logger: logger}
}

func (h *mediaHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	command, _ := params["command"].(string)
	if !mediaCommands[command] {
		return Result{}, fmt.Errorf("media action: command must be one of play|pause|toggle, got %q", command)
	}
	h.logger.Info("media", "command", command)
	return Result{Success: true, Message: command}, nil
}
