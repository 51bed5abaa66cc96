// Package clipboard copies text to the system clipboard through the
// platform's clipboard command.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrClipboardUnavailable is returned when no clipboard command is found.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// candidates lists clipboard commands per OS, in order of preference.
var candidates = map[string][][]string{
	"darwin": {{"pbcopy"}},
	"linux": {
		{"wl-copy"},
		{"xclip", "-selection", "clipboard"},
		{"xsel", "--clipboard", "--input"},
	},
}

// command picks the first available clipboard command for goos.
func command(goos string, lookPath func(string) (string, error)) ([]string, error) {
	for _, c := range candidates[goos] {
		if _, err := lookPath(c[0]); err == nil {
			return c, nil
		}
	}
	return nil, ErrClipboardUnavailable
}

// IsAvailable reports whether a clipboard command exists on this system.
func IsAvailable() bool {
	_, err := command(runtime.GOOS, exec.LookPath)
	return err == nil
}

// Copy writes text to the system clipboard.
func Copy(ctx context.Context, text string) error {
	argv, err := command(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
