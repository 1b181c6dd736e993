// Package hub downloads model files from a Hugging Face compatible hub into
// a local cache directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"glowrs/internal/common/fsutil"
	"glowrs/internal/logx"
	"glowrs/internal/repo"
)

// DefaultBaseURL is the public Hugging Face hub.
const DefaultBaseURL = "https://huggingface.co"

// ErrNotFound is returned when the hub has no such repository, revision or file.
var ErrNotFound = errors.New("not found on hub")

// StatusError reports an unexpected HTTP status from the hub.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub: GET %s: status %d", e.URL, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ProgressFunc returns a writer that observes the bytes of one download. size
// is -1 when the hub does not report it. If the writer is also an io.Closer it
// is closed when the download ends.
type ProgressFunc func(file string, size int64) io.Writer

// Client fetches files and caches them under Dir/<owner>/<model>/<revision>/.
type Client struct {
	http     *resty.Client
	dir      string
	progress ProgressFunc
	log      zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a mirror or a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(strings.TrimRight(u, "/")) }
}

// WithToken sends a bearer token, needed for gated repositories.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithProgress reports download progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) { c.progress = fn }
}

// WithLogger overrides the default component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client caching into dir (fsutil.DefaultCacheDir when empty).
func New(dir string, opts ...Option) (*Client, error) {
	if dir == "" {
		dir = fsutil.DefaultCacheDir()
	}
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("User-Agent", "glowrs"),
		dir: dir,
		log: logx.For("hub"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache root.
func (c *Client) Dir() string { return c.dir }

// Path returns where file of ref is (or will be) cached.
func (c *Client) Path(ref repo.Ref, file string) string {
	rev := ref.Revision
	if rev == "" {
		rev = repo.DefaultRevision
	}
	return filepath.Join(c.dir, filepath.FromSlash(ref.Name), strings.ReplaceAll(rev, "/", "--"), filepath.FromSlash(file))
}

// Cached reports whether file of ref is already on disk.
func (c *Client) Cached(ref repo.Ref, file string) bool {
	return fsutil.FileExists(c.Path(ref, file))
}

// Fetch returns the local path of file, downloading it first if needed.
func (c *Client) Fetch(ctx context.Context, ref repo.Ref, file string) (string, error) {
	dst := c.Path(ref, file)
	if fsutil.FileExists(dst) {
		c.log.Debug().Str("repo", ref.String()).Str("file", file).Msg("cache hit")
		return dst, nil
	}
	rev := ref.Revision
	if rev == "" {
		rev = repo.DefaultRevision
	}
	path := "/" + ref.Name + "/resolve/" + url.PathEscape(rev) + "/" + file

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return "", fmt.Errorf("hub: fetch %s %s: %w", ref, file, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if !resp.IsSuccess() {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 4<<10))
		return "", &StatusError{URL: resp.Request.URL, Status: resp.StatusCode()}
	}

	var src io.Reader = body
	if c.progress != nil {
		size := int64(-1)
		if resp.RawResponse != nil {
			size = resp.RawResponse.ContentLength
		}
		if w := c.progress(file, size); w != nil {
			src = io.TeeReader(body, w)
			if cl, ok := w.(io.Closer); ok {
				defer cl.Close()
			}
		}
	}
	n, err := fsutil.WriteFileAtomic(dst, src)
	if err != nil {
		return "", fmt.Errorf("hub: store %s: %w", file, err)
	}
	c.log.Info().Str("repo", ref.String()).Str("file", file).Int64("bytes", n).Dur("took", time.Since(start)).Msg("downloaded")
	return dst, nil
}

// FetchAll fetches every file and returns their local paths keyed by name.
// Files listed in optional may be missing on the hub.
func (c *Client) FetchAll(ctx context.Context, ref repo.Ref, files []string, optional ...string) (map[string]string, error) {
	skip := make(map[string]bool, len(optional))
	for _, f := range optional {
		skip[f] = true
	}
	out := make(map[string]string, len(files)+len(optional))
	for _, f := range append(append([]string(nil), files...), optional...) {
		p, err := c.Fetch(ctx, ref, f)
		if err != nil {
			if skip[f] && errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[f] = p
	}
	return out, nil
}

// Remove deletes every cached file of ref.
func (c *Client) Remove(ref repo.Ref) error {
	return os.RemoveAll(filepath.Dir(c.Path(ref, "x")))
}
