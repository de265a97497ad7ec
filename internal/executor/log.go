package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/eventbus"
)

// logHandler emits a structured record at a configured level with a
// template-expanded message. It never fails, per spec.md §4.4.
type logHandler struct {
	logger *slog.Logger
}

func newLogHandler(logger *slog.Logger) *logHandler {
	return &logHandler{logger: logger}
}

func (h *logHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	message, _ := params["message"].(string)
	levelStr, _ := params["level"].(string)

	level, err := config.ParseLogLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}

	expanded := expandTemplate(message, ev)
	h.logger.Log(ctx, level, expanded, "rule_action", "log", "event_kind", string(ev.Kind), "event_source", ev.Source)
	return Result{Success: true, Message: expanded}, nil
}

// expandTemplate replaces {{EVENT_PATH}}, {{EVENT_TYPE}},
// {{EVENT_SOURCE}}, and {{metadata.<key>}} placeholders with values
// drawn from ev, exactly as spec.md §4.4 lists them.
func expandTemplate(tmpl string, ev eventbus.Event) string {
	replacer := strings.NewReplacer(
		"{{EVENT_PATH}}", ev.Metadata["path"],
		"{{EVENT_TYPE}}", string(ev.Kind),
		"{{EVENT_SOURCE}}", ev.Source,
	)
	out := replacer.Replace(tmpl)
	for key, value := range ev.Metadata {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{metadata.%s}}", key), value)
	}
	return out
}
