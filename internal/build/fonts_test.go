package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/epubbuild/internal/epub"
	"github.com/yuanying/epubbuild/internal/shell"
	"golang.org/x/image/font/gofont/goregular"
)

func TestSubsetFonts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{
		"Text/b.xhtml":                     []byte("<html/>"),
		"Text/a.xhtml":                     []byte("<html/>"),
		"Fonts/body.ttf":                   goregular.TTF,
		"Fonts/.font-spider/body.ttf.orig": goregular.TTF,
	})
	textDir := filepath.Join(root, "Text")
	fontDir := filepath.Join(root, "Fonts")

	r := &fakeRunner{handle: func(shell.Command) (shell.Result, error) {
		return shell.Result{Stderr: "glyph missing"}, nil
	}}
	res, err := subsetFonts(context.Background(), r, []string{"npx", "font-spider"}, textDir, fontDir)
	if err != nil {
		t.Fatalf("subsetFonts() error = %v", err)
	}
	if !res.Warned() {
		t.Error("stderr output was not reported")
	}

	cmd, ok := r.called("npx")
	if !ok {
		t.Fatal("subsetter was not run")
	}
	want := []string{"font-spider", filepath.Join(textDir, "a.xhtml"), filepath.Join(textDir, "b.xhtml")}
	if strings.Join(cmd.Args, "|") != strings.Join(want, "|") {
		t.Errorf("args = %v, want %v", cmd.Args, want)
	}
	if _, err := os.Stat(filepath.Join(fontDir, fontSubsetBackupDir)); !errors.Is(err, os.ErrNotExist) {
		t.Error("backup directory was not removed")
	}
	if _, err := os.Stat(filepath.Join(fontDir, "body.ttf")); err != nil {
		t.Errorf("font removed: %v", err)
	}
}

func TestSubsetFonts_Failure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"Fonts/.font-spider/x": {0}})
	r := &fakeRunner{handle: func(shell.Command) (shell.Result, error) {
		return shell.Result{ExitCode: 2}, shell.ErrCommandFailed
	}}

	_, err := subsetFonts(context.Background(), r, []string{"font-spider"}, filepath.Join(root, "Text"), filepath.Join(root, "Fonts"))
	if !errors.Is(err, shell.ErrCommandFailed) {
		t.Fatalf("subsetFonts() error = %v, want ErrCommandFailed", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Fonts", fontSubsetBackupDir)); err != nil {
		t.Error("backup directory removed after a failed run")
	}
}

func TestFontCoverage(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{
		"Text/ch1.xhtml": []byte(`<html><body><p>Go  漢字 go</p><p>ß</p></body></html>`),
		"Fonts/go.ttf":   goregular.TTF,
		"Fonts/web.woff": []byte("wOFF"),
	})
	idx := &epub.AssetIndex{Entries: []epub.AssetEntry{
		{ID: "font-go", Href: "Fonts/go.ttf", Category: epub.CategoryFont},
		{ID: "font-web", Href: "Fonts/web.woff", Category: epub.CategoryFont},
		{ID: "text-ch1", Href: "Text/ch1.xhtml", Category: epub.CategoryText},
	}}

	used, err := usedRunes(root, idx)
	if err != nil {
		t.Fatalf("usedRunes() error = %v", err)
	}
	for _, r := range "Go漢字ß" {
		if !used[r] {
			t.Errorf("usedRunes() missing %q", r)
		}
	}
	if used[' '] {
		t.Error("usedRunes() includes whitespace")
	}

	missing, skipped, err := fontCoverage(root, idx, used)
	if err != nil {
		t.Fatalf("fontCoverage() error = %v", err)
	}
	if missing != "字漢" {
		t.Errorf("missing = %q, want %q", missing, "字漢")
	}
	if len(skipped) != 1 || skipped[0] != "Fonts/web.woff" {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestFontCoverage_NoParsableFont(t *testing.T) {
	idx := &epub.AssetIndex{}
	missing, _, err := fontCoverage(t.TempDir(), idx, map[rune]bool{'漢': true})
	if err != nil {
		t.Fatalf("fontCoverage() error = %v", err)
	}
	if missing != "" {
		t.Errorf("missing = %q, want none without fonts", missing)
	}
}
