package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SyncResult reports what a Sync call did for one source URL.
type SyncResult struct {
	URL     string   `json:"url"`
	Path    string   `json:"path"`
	Changed bool     `json:"changed"`
	Files   []string `json:"files,omitempty"`
}

// Sync downloads each source URL into destDir, skipping sources whose
// ETag matches the one saved from the previous run. ZIP downloads are
// extracted next to the archive. Sync stops at the first failure.
func Sync(ctx context.Context, f Fetcher, sources []string, destDir string) ([]SyncResult, error) {
	log := zap.L().With(zap.String("component", "fetcher.sync"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetch: create dest dir")
	}

	results := make([]SyncResult, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "fetch: cancelled")
		}
		res, err := syncOne(ctx, f, src, destDir)
		if err != nil {
			return results, eris.Wrapf(err, "fetch: %s", src)
		}
		log.Info("source synced",
			zap.String("url", src),
			zap.String("path", res.Path),
			zap.Bool("changed", res.Changed),
			zap.Int("files", len(res.Files)),
		)
		results = append(results, res)
	}
	return results, nil
}

func syncOne(ctx context.Context, f Fetcher, src, destDir string) (SyncResult, error) {
	name, err := fileName(src)
	if err != nil {
		return SyncResult{}, err
	}
	dest := filepath.Join(destDir, name)
	etagPath := dest + ".etag"
	res := SyncResult{URL: src, Path: dest}

	etag := ""
	if _, err := os.Stat(dest); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, src, etag)
	if err != nil {
		return res, err
	}
	if !changed {
		return res, nil
	}
	res.Changed = true

	_, err = writeFile(dest, body)
	_ = body.Close()
	if err != nil {
		return res, err
	}
	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			return res, eris.Wrap(err, "write etag")
		}
	}

	if IsZIP(dest) {
		files, err := ExtractZIP(dest, destDir)
		if err != nil {
			return res, err
		}
		res.Files = files
	}
	return res, nil
}

func fileName(src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", eris.Wrap(err, "parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", eris.Errorf("url %q has no file name", src)
	}
	return name, nil
}
