package hooking

import (
	"fmt"
	"log"
)

// LogHook prints one line per hook invocation.
type LogHook struct {
	*log.Logger

	positions map[*HookPos]bool
}

// NewLogHook returns a LogHook that writes to logger. If positions are given,
// only those positions are printed.
func NewLogHook(logger *log.Logger, positions ...*HookPos) *LogHook {
	h := &LogHook{Logger: logger}

	if len(positions) > 0 {
		h.positions = make(map[*HookPos]bool)
		for _, p := range positions {
			h.positions[p] = true
		}
	}

	return h
}

// Func writes the hook context into the logger.
func (h *LogHook) Func(ctx HookCtx) {
	if h.positions != nil && !h.positions[ctx.Pos] {
		return
	}

	line := fmt.Sprintf("%d, %s, %v", ctx.Now, ctx.Pos.Name, ctx.Item)
	if ctx.Detail != nil {
		line += fmt.Sprintf(", %v", ctx.Detail)
	}

	h.Println(line)
}
