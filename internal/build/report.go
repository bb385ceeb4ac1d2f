package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FileInfo describes one output file.
type FileInfo struct {
	Name     string
	Size     int64
	Modified time.Time
	SHA256   string
}

func (fi FileInfo) String() string {
	return fmt.Sprintf("%s\n    Size(B): %d Modified: %d sha256: %s",
		fi.Name, fi.Size, fi.Modified.UnixMilli(), fi.SHA256)
}

// describeFiles stats and hashes every existing file in paths concurrently.
// Missing files are skipped; results keep the input order.
func describeFiles(ctx context.Context, paths ...string) ([]FileInfo, error) {
	infos := make([]*FileInfo, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			fi, err := describeFile(ctx, p)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			infos[i] = fi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(paths))
	for _, fi := range infos {
		if fi != nil {
			out = append(out, *fi)
		}
	}
	return out, nil
}

func describeFile(ctx context.Context, p string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", p, err)
	}
	return &FileInfo{
		Name:     filepath.Base(p),
		Size:     st.Size(),
		Modified: st.ModTime(),
		SHA256:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// writeReport writes the descriptions to path, separated by blank lines.
func writeReport(path string, infos []FileInfo) error {
	parts := make([]string, len(infos))
	for i, fi := range infos {
		parts[i] = fi.String()
	}
	if err := os.WriteFile(path, []byte(strings.Join(parts, "\n\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
