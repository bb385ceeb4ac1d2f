package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func buildCmdForTest(t *testing.T, flagArgs ...string) *cobra.Command {
	t.Helper()
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"build"})
	if err != nil {
		t.Fatalf("Find(build) error = %v", err)
	}
	if err := cmd.ParseFlags(flagArgs); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	cmd.SetErr(&bytes.Buffer{})
	return cmd
}

func readOptionsForTest(t *testing.T, flagArgs ...string) error {
	t.Helper()
	_, err := readCLIOptions(buildCmdForTest(t, flagArgs...), nil)
	return err
}

func TestReadCLIOptions_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := readCLIOptions(buildCmdForTest(t), nil)
	if err != nil {
		t.Fatalf("readCLIOptions() error = %v", err)
	}

	if opts.SourceDir != "src" || opts.BuildDir != "build" || opts.DistDir != "dist" {
		t.Fatalf("dirs = %q %q %q", opts.SourceDir, opts.BuildDir, opts.DistDir)
	}
	if opts.TemplateDir != "epub-template" {
		t.Fatalf("TemplateDir = %q", opts.TemplateDir)
	}
	if opts.MobiConverter != "kindlegen" {
		t.Fatalf("MobiConverter = %q", opts.MobiConverter)
	}
	if opts.NoMobi || opts.Strict {
		t.Fatalf("NoMobi = %v, Strict = %v, want false", opts.NoMobi, opts.Strict)
	}
	if opts.Nav.Placeholder != "${toc}" {
		t.Fatalf("Nav.Placeholder = %q", opts.Nav.Placeholder)
	}
	if opts.Logger == nil {
		t.Fatal("Logger is nil, want non-nil")
	}
	if !opts.Logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("Logger should be enabled at INFO level by default")
	}
	if opts.Logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("Logger should not be enabled at DEBUG level by default")
	}
	if opts.Runner == nil {
		t.Fatal("Runner is nil, want non-nil")
	}
}

func TestReadCLIOptions_CustomFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := buildCmdForTest(t,
		"--no-mobi",
		"--strict",
		"--max-image-width", "720",
		"--source", "book",
		"--dist", "out",
		"--log-level", "warn",
		"--verbose",
	)
	opts, err := readCLIOptions(cmd, nil)
	if err != nil {
		t.Fatalf("readCLIOptions() error = %v", err)
	}

	if !opts.NoMobi {
		t.Fatal("NoMobi = false, want true")
	}
	if !opts.Strict {
		t.Fatal("Strict = false, want true")
	}
	if opts.MaxImageWidth != 720 {
		t.Fatalf("MaxImageWidth = %d", opts.MaxImageWidth)
	}
	if opts.SourceDir != "book" || opts.DistDir != "out" {
		t.Fatalf("SourceDir = %q, DistDir = %q", opts.SourceDir, opts.DistDir)
	}
	// --verbose overrides log-level to debug
	if !opts.Logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("Logger should be enabled at DEBUG level when --verbose is set")
	}
}

func TestReadCLIOptions_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := "paths:\n  source: manuscript\nstrict: true\nimages:\n  max_width: 640\n"
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := readCLIOptions(buildCmdForTest(t, "--config", "custom.yaml"), nil)
	if err != nil {
		t.Fatalf("readCLIOptions() error = %v", err)
	}
	if opts.SourceDir != "manuscript" || !opts.Strict || opts.MaxImageWidth != 640 {
		t.Fatalf("opts = %+v", opts)
	}

	// flags win over the file
	opts, err = readCLIOptions(buildCmdForTest(t, "--config", "custom.yaml", "--strict=false", "--max-image-width", "300"), nil)
	if err != nil {
		t.Fatalf("readCLIOptions() error = %v", err)
	}
	if opts.Strict || opts.MaxImageWidth != 300 {
		t.Fatalf("Strict = %v, MaxImageWidth = %d", opts.Strict, opts.MaxImageWidth)
	}
}

func TestReadCLIOptions_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EPUBBUILD_MOBI_CONVERTER", "/opt/kindlegen")

	opts, err := readCLIOptions(buildCmdForTest(t), nil)
	if err != nil {
		t.Fatalf("readCLIOptions() error = %v", err)
	}
	if opts.MobiConverter != "/opt/kindlegen" {
		t.Fatalf("MobiConverter = %q", opts.MobiConverter)
	}
}

func TestReadCLIOptions_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := readOptionsForTest(t, "--config", "nope.yaml"); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestReadCLIOptions_InvalidMaxImageWidth(t *testing.T) {
	t.Chdir(t.TempDir())
	err := readOptionsForTest(t, "--max-image-width", "0")
	if err == nil || !strings.Contains(err.Error(), "--max-image-width") {
		t.Fatalf("expected max-image-width validation error, got %v", err)
	}
}

func TestReadCLIOptions_InvalidLogLevel(t *testing.T) {
	err := readOptionsForTest(t, "--log-level", "trace")
	if err == nil || !strings.Contains(err.Error(), "--log-level") {
		t.Fatalf("expected log-level validation error, got %v", err)
	}
}

func TestReadCLIOptions_InvalidLogFormat(t *testing.T) {
	err := readOptionsForTest(t, "--log-format", "yaml")
	if err == nil || !strings.Contains(err.Error(), "--log-format") {
		t.Fatalf("expected log-format validation error, got %v", err)
	}
}

func TestBuildLogger_FormatNormalization(t *testing.T) {
	var buf bytes.Buffer
	logger := buildLogger(&buf, "info", "JSON")
	logger.Info("test message")
	// JSON format should produce JSON output (starts with '{')
	output := buf.String()
	if len(output) == 0 || output[0] != '{' {
		t.Fatalf("expected JSON output for format 'JSON', got: %s", output)
	}
}

func TestBuildLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := buildLogger(&buf, "error", "text")
	logger.Warn("hidden")
	if buf.Len() != 0 {
		t.Fatalf("warn message written at error level: %s", buf.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"build", "preview", "verify"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not found: %v", name, err)
		}
	}
}

func TestVerifyCmd_MissingFile(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"verify", filepath.Join(t.TempDir(), "missing.epub")})

	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "verification failed") {
		t.Fatalf("Execute() error = %v, want verification failure", err)
	}
}
