package discord

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
)

// CDN downloads attachment content. Attachment urls are signed, so no
// credential is sent.
type CDN struct {
	client *http.Client
}

var _ remote.Fetcher = &CDN{}

func NewCDN(timeout time.Duration) *CDN {
	return &CDN{client: &http.Client{Timeout: timeout}}
}

func (c *CDN) FetchBinary(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, oops.New(err, "failed to make Discord download request")
	}
	req.Header.Set("User-Agent", UserAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return 0, nil, oops.New(err, "failed to fetch Discord resource data")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || 299 < res.StatusCode {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, res.Body)
		return res.StatusCode, nil, nil
	}

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, oops.New(err, "failed to read Discord resource data")
	}
	return res.StatusCode, content, nil
}
