package remotetest

import (
	"context"
	"sync"

	"github.com/wumpus-archiver/archiver/src/remote"
)

// Response is one scripted reply. A non-nil Err simulates a transport
// failure.
type Response struct {
	Status int
	Body   []byte
	Err    error
}

// Fetcher replays scripted responses per URL. Once a URL's script runs out,
// its last response repeats. Unknown URLs get a 404.
type Fetcher struct {
	mu      sync.Mutex
	scripts map[string][]Response
	calls   map[string]int
}

var _ remote.Fetcher = &Fetcher{}

func NewFetcher() *Fetcher {
	return &Fetcher{
		scripts: make(map[string][]Response),
		calls:   make(map[string]int),
	}
}

func (f *Fetcher) Script(url string, responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[url] = responses
}

func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *Fetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *Fetcher) FetchBinary(ctx context.Context, url string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[url]
	f.calls[url] = n + 1

	script := f.scripts[url]
	if len(script) == 0 {
		return 404, nil, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	res := script[n]
	return res.Status, res.Body, res.Err
}
