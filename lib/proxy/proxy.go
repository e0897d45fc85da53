package proxy

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// Rotator hands out outbound proxy urls in a fixed cyclic order. An empty
// rotator is valid and means direct connections: Current returns "".
//
// Rotation is driven by the caller (typically after a 429 or a transport
// failure), it does not advance on every request.
type Rotator struct {
	mu      sync.Mutex
	proxies []string
	cursor  int
}

// New builds a rotator over the given proxy urls. Empty entries are dropped
// and the order is shuffled once when more than one proxy is supplied, so
// repeated runs do not always burn the same proxy first.
func New(proxies []string) *Rotator {
	cleaned := make([]string, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 1 {
		rand.Shuffle(len(cleaned), func(i, j int) {
			cleaned[i], cleaned[j] = cleaned[j], cleaned[i]
		})
	}
	return &Rotator{proxies: cleaned}
}

// Current returns the active proxy url, or "" when none are configured.
func (r *Rotator) Current() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ""
	}
	return r.proxies[r.cursor%len(r.proxies)]
}

// Rotate advances to the next proxy. A no-op without configured proxies.
func (r *Rotator) Rotate() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return
	}
	r.cursor = (r.cursor + 1) % len(r.proxies)
}

// Len reports the number of configured proxies.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

// LoadFile reads a newline-delimited proxy list. Blank lines and lines
// starting with '#' are ignored.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var proxies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return proxies, nil
}
