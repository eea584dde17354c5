package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// Frontier is the breadth-first queue of discovered-but-unfetched URLs plus
// the visited-set for one crawl run. A URL is marked visited when enqueued,
// so each normalized URL is handed out at most once per run. One Frontier is
// owned by exactly one run and discarded with it.
type Frontier struct {
	mu      sync.Mutex
	queue   []*url.URL
	visited map[string]struct{}
}

func NewFrontier() *Frontier {
	return &Frontier{
		visited: make(map[string]struct{}),
	}
}

// Enqueue adds u if its normalized form has not been seen this run. Returns
// true when the URL was actually added.
func (f *Frontier) Enqueue(u *url.URL) bool {
	key := NormalizeURL(u)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.visited[key]; seen {
		return false
	}
	f.visited[key] = struct{}{}
	f.queue = append(f.queue, u)
	return true
}

// Next pops the oldest queued URL, preserving discovery order.
func (f *Frontier) Next() (*url.URL, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return nil, false
	}
	u := f.queue[0]
	f.queue = f.queue[1:]
	return u, true
}

func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// NormalizeURL derives the visited-set key: lowercased scheme and host, the
// path with any trailing slash dropped, no query string and no fragment.
// Query strings are deliberately ignored so tracking parameters do not
// multiply fetches of the same page.
func NormalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	path := strings.TrimSuffix(u.Path, "/")
	return scheme + "://" + host + path
}
