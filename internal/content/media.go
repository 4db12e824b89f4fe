package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalName derives the deterministic on-disk file name for a remote media
// path. Slashes become underscores so repeated downloads are idempotent by
// name.
func LocalName(uri string) string {
	return strings.ReplaceAll(uri, "/", "_")
}

// MediaStore mirrors remote media assets into a local directory. Files are
// written once per unique remote path and never deleted.
type MediaStore struct {
	dir     string
	baseURL string
	client  *http.Client
}

func NewMediaStore(dir, baseURL string, client *http.Client) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &MediaStore{dir: dir, baseURL: baseURL, client: client}, nil
}

// Ensure makes sure the asset for uri exists locally and returns its local
// file name. The existence check strictly precedes the download, so an asset
// already on disk never triggers a second transfer.
func (s *MediaStore) Ensure(ctx context.Context, uri string) (string, error) {
	name := LocalName(uri)
	dst := filepath.Join(s.dir, name)
	if _, err := os.Stat(dst); err == nil {
		return name, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download %s: status %d", uri, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	// Rename keeps concurrent Ensure calls from observing partial files.
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return name, nil
}

// Path returns the absolute path of a stored asset.
func (s *MediaStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Clean(name))
}
