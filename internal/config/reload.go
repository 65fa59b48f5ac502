package config

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// Reloader holds the reply texts and swaps them when the config file changes.
// Other settings need a restart.
type Reloader struct {
	replies atomic.Pointer[Replies]
	logger  *slog.Logger
}

// NewReloader creates a reloader seeded with the replies loaded at startup.
func NewReloader(initial Replies, logger *slog.Logger) *Reloader {
	r := &Reloader{logger: logger}
	r.replies.Store(&initial)
	return r
}

// Replies returns the current reply texts.
func (r *Reloader) Replies() Replies { return *r.replies.Load() }

// Reload re-reads path and installs its replies. An unreadable or invalid file
// keeps the previous texts. Its signature matches configwatch callbacks.
func (r *Reloader) Reload(path string) {
	cfg, err := LoadFile(path)
	if err != nil {
		r.logger.Error("reload config failed", "path", path, "error", err)
		return
	}
	r.replies.Store(&cfg.Replies)
	r.logger.Info("replies reloaded", "path", path)
}

// Render substitutes {name} placeholders in a reply text.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
