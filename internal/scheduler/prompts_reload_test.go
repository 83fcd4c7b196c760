package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/prompts"
)

func writePromptsFile(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("prompts:\n")
	for i := range n {
		b.WriteString("  - \"custom prompt ")
		b.WriteByte(byte('a' + i))
		b.WriteString("\"\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestPromptsReloader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	writePromptsFile(t, path, prompts.Count)

	svc := prompts.NewService(nil, nil, prompts.Options{CacheTTL: time.Minute}, logger.Nop())
	r := NewPromptsReloader(path, svc, logger.Nop(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := svc.GetPrompts(ctx, uuid.New())
	if got[0] != "custom prompt a" {
		t.Errorf("GetPrompts()[0] = %q, want the file's first prompt", got[0])
	}

	// A broken file keeps the previous list.
	writePromptsFile(t, path, 3)
	if err := r.Reload(); err == nil {
		t.Error("Reload() should reject a file with 3 prompts")
	}
	if svc.Fallback()[0] != "custom prompt a" {
		t.Errorf("fallback changed after a failed reload: %v", svc.Fallback())
	}
}

func TestPromptsReloaderMissingFile(t *testing.T) {
	svc := prompts.NewService(nil, nil, prompts.Options{}, logger.Nop())
	r := NewPromptsReloader(filepath.Join(t.TempDir(), "absent.yaml"), svc, logger.Nop(), time.Minute)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when the file is missing")
	}
}
