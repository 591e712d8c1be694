package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	inputPlaceholder  = "{in}"
	outputPlaceholder = "{out}"
)

// Converter turns HEIC payloads into JPEG by running an external tool
// such as libheif's heif-convert or ImageMagick.
type Converter struct {
	bin     string
	args    []string
	tempDir string
}

// NewConverter builds a converter. args may reference {in} and {out}; when
// neither is present they are appended as the last two arguments.
func NewConverter(bin string, args []string, tempDir string) *Converter {
	if bin == "" {
		bin = "heif-convert"
	}
	if !hasPlaceholders(args) {
		args = append(append([]string{}, args...), inputPlaceholder, outputPlaceholder)
	}
	return &Converter{bin: bin, args: args, tempDir: tempDir}
}

func (c *Converter) ToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	start := time.Now()

	dir, err := os.MkdirTemp(c.tempDir, "heic-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.heic")
	out := filepath.Join(dir, "output.jpg")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write converter input: %w", err)
	}

	args := make([]string, len(c.args))
	for i, a := range c.args {
		a = strings.ReplaceAll(a, inputPlaceholder, in)
		args[i] = strings.ReplaceAll(a, outputPlaceholder, out)
	}

	cmd := exec.CommandContext(ctx, c.bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s exited with code %d: %s", c.bin, ee.ExitCode(), strings.TrimSpace(string(output)))
		}
		return nil, fmt.Errorf("run %s: %w", c.bin, err)
	}

	jpg, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read converter output: %w", err)
	}
	slog.Debug("converter: heic converted",
		"bin", c.bin,
		"input_bytes", len(data),
		"output_bytes", len(jpg),
		"duration_ms", time.Since(start).Milliseconds())
	return jpg, nil
}

func hasPlaceholders(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, inputPlaceholder) || strings.Contains(a, outputPlaceholder) {
			return true
		}
	}
	return false
}
