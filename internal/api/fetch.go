package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ptsched/internal/log"
)

// fetchCache stores conditional-request metadata (ETag / Last-Modified) and
// the last good body for GET endpoints, keyed by a hash of the URL. Week
// fetches happen on every refresh cue, so avoiding full transfers matters on
// metered links, and the cached body doubles as an offline fallback.
type fetchCache struct {
	dir string
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newFetchCache(dir string) *fetchCache {
	return &fetchCache{dir: dir}
}

// fetchConditional performs a GET honoring cached ETag / Last-Modified.
// It returns the response body and whether it came from the cache.
//
// Fallback rules mirror the fetch behavior of the rest of the client:
//   - network error with a cached body -> cached body, logged
//   - 304 Not Modified -> cached body (error if none exists)
//   - non-OK status with a cached body -> cached body, logged
func (c *Client) fetchConditional(ctx context.Context, u string) (body []byte, fromCache bool, err error) {
	cachePath, err := c.cache.pathForURL(u)
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, false, err
	}

	meta, _ := c.cache.loadMeta(cachePath)
	cachedBody, _ := c.cache.loadBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	c.decorate(req)

	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			log.Error("fetch network error, using cached body", err, "url", redactURL(u))
			return cachedBody, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fresh, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, false, readErr
		}

		newMeta := cacheEntry{
			URL:          u,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := c.cache.save(cachePath, newMeta, fresh); err != nil {
			// Log but still return the freshly fetched body.
			log.Error("fetch cache save failed", err, "url", redactURL(u))
		}
		return fresh, false, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		log.Debug("fetch not modified; using cache", "url", redactURL(u))
		return cachedBody, true, nil

	default:
		if len(cachedBody) > 0 {
			log.Error("fetch non-OK, using cached body", errStatus(resp), "url", redactURL(u), "status", resp.StatusCode)
			return cachedBody, true, nil
		}
		return nil, false, errStatus(resp)
	}
}

func (f *fetchCache) pathForURL(u string) (string, error) {
	if u == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(u))
	// First 16 hex chars are plenty for a per-URL directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(f.dir, dir), nil
}

func (f *fetchCache) loadMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *fetchCache) loadBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func (f *fetchCache) save(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides query strings and paths when logging service URLs; the
// query may carry identifiers and the path shape is noise in logs.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "api://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
