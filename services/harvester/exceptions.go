package harvester

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// ExceptionList tracks targets whose harvest failed, persisted as one
// identity key per line so repeated runs accumulate a review list instead
// of aborting.
type ExceptionList struct {
	path    string
	entries map[string]bool
}

// LoadExceptions reads an exception file if it exists. A missing file is an
// empty list.
func LoadExceptions(path string) (*ExceptionList, error) {
	l := &ExceptionList{path: path, entries: map[string]bool{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.entries[line] = true
	}
	return l, scanner.Err()
}

func (l *ExceptionList) Add(key IdentityKey) {
	l.entries[key.String()] = true
}

func (l *ExceptionList) Has(key IdentityKey) bool {
	return l.entries[key.String()]
}

func (l *ExceptionList) Len() int {
	return len(l.entries)
}

func (l *ExceptionList) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the deduplicated, sorted list back to disk. An empty list
// still writes, so a clean run truncates stale entries.
func (l *ExceptionList) Save() error {
	if l.path == "" {
		return nil
	}
	var sb strings.Builder
	for _, k := range l.Keys() {
		sb.WriteString(k)
		sb.WriteByte('\n')
	}
	return os.WriteFile(l.path, []byte(sb.String()), 0644)
}
