package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jdelaire/turnbot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReloadReplies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnbot.yaml")

	os.WriteFile(path, []byte("replies:\n  unknown_command: \"what is {command}?\"\n"), 0644)
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reloader := config.NewReloader(cfg.Replies, testLogger())
	if got := reloader.Replies().UnknownCommand; got != "what is {command}?" {
		t.Fatalf("initial reply = %q", got)
	}

	os.WriteFile(path, []byte("replies:\n  unknown_command: \"no idea about {command}\"\n  wrong_scope: \"nope\"\n"), 0644)
	reloader.Reload(path)

	replies := reloader.Replies()
	if replies.UnknownCommand != "no idea about {command}" {
		t.Errorf("unknown_command = %q", replies.UnknownCommand)
	}
	if replies.WrongScope != "nope" {
		t.Errorf("wrong_scope = %q", replies.WrongScope)
	}
}

func TestReloadKeepsRepliesOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnbot.yaml")
	os.WriteFile(path, []byte("replies:\n  wrong_scope: \"first\"\n"), 0644)

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reloader := config.NewReloader(cfg.Replies, testLogger())

	// Invalid YAML.
	os.WriteFile(path, []byte("replies: [unclosed\n"), 0644)
	reloader.Reload(path)
	if got := reloader.Replies().WrongScope; got != "first" {
		t.Errorf("wrong_scope = %q after bad reload, want first", got)
	}

	// Valid YAML, invalid config.
	os.WriteFile(path, []byte("mode: carrier-pigeon\nreplies:\n  wrong_scope: \"second\"\n"), 0644)
	reloader.Reload(path)
	if got := reloader.Replies().WrongScope; got != "first" {
		t.Errorf("wrong_scope = %q after invalid reload, want first", got)
	}

	// Missing file.
	os.Remove(path)
	reloader.Reload(path)
	if got := reloader.Replies().WrongScope; got != "first" {
		t.Errorf("wrong_scope = %q after missing file, want first", got)
	}
}

func TestRender(t *testing.T) {
	got := config.Render("{command} can only be used in {scope}.", map[string]string{
		"command": "/kick",
		"scope":   "groups",
	})
	if got != "/kick can only be used in groups." {
		t.Errorf("Render = %q", got)
	}
	if got := config.Render("plain", nil); got != "plain" {
		t.Errorf("Render without vars = %q", got)
	}
}
