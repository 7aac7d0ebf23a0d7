package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

// FileFetcher reads local files. With Root set, relative paths resolve
// against it and no path may leave it; an empty Root reads anywhere.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := ParseLocator(locator)
	if err != nil || loc.Scheme != SchemeFile {
		return nil, ingesterr.NewConfigurationFailure(fmt.Sprintf("not a file locator: %q", locator), "locator", err)
	}

	path, err := f.resolve(loc.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ingesterr.NewConfigurationFailure("source file not found", "locator", err)
	}
	if err != nil {
		return nil, ingesterr.NewServiceFailure("file", "read", err)
	}
	return data, nil
}

func (f FileFetcher) resolve(path string) (string, error) {
	if f.Root == "" {
		return path, nil
	}
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", ingesterr.NewConfigurationFailure("invalid source root", "root", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ingesterr.NewConfigurationFailure("path is outside the source root", "locator", err)
	}
	return path, nil
}
