// Package credstore manages the numbered credential files ("auth-<n>.json")
// that capture runs produce and the proxy server routes requests with.
//
// Files are only ever replaced through write-then-rename, so readers never
// lock and never see a partially written record.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/steveyegge/authcap/internal/util"
)

// ErrNotFound is returned when a credential file does not exist.
var ErrNotFound = errors.New("credential not found")

// lockName is the writer lock guarding index allocation. It does not match
// the credential file pattern, so discovery ignores it.
const lockName = ".auth.lock"

var filenamePattern = regexp.MustCompile(`(?i)^auth-(\d+)\.json$`)

// Entry identifies one credential file in the store.
type Entry struct {
	Index int    `json:"index"`
	File  string `json:"file"`
}

// Store is a directory of numbered credential files.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory need not exist yet.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Filename returns the file name used for an account index.
func Filename(index int) string {
	return fmt.Sprintf("auth-%d.json", index)
}

// ParseFilename extracts the account index from a credential file name.
// Names that do not match the pattern, or whose index overflows, are rejected.
func ParseFilename(name string) (int, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return index, true
}

// Path returns the full path of the credential file for index. Discovery
// accepts any case and zero padding, so an existing file such as
// "AUTH-7.JSON" is resolved by scanning the directory when the canonical
// name is absent. Without any match the canonical name is returned.
func (s *Store) Path(index int) string {
	canonical := filepath.Join(s.dir, Filename(index))
	if _, err := os.Lstat(canonical); err == nil {
		return canonical
	}
	names, err := s.names()
	if err != nil {
		return canonical
	}
	for _, name := range names {
		if i, ok := ParseFilename(name); ok && i == index {
			return filepath.Join(s.dir, name)
		}
	}
	return canonical
}

// Discover picks the highest-indexed credential among names.
// Returns false when no name is a valid credential file.
func Discover(names []string) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, name := range names {
		index, ok := ParseFilename(name)
		if !ok {
			continue
		}
		if !found || index > best.Index {
			best = Entry{Index: index, File: name}
			found = true
		}
	}
	return best, found
}

// names lists the directory. A missing directory is an empty store.
func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credential dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Latest returns the most recent (highest-indexed) credential file.
// An unreadable or missing directory yields no artifact rather than an error.
func (s *Store) Latest() (Entry, bool) {
	names, err := s.names()
	if err != nil {
		return Entry{}, false
	}
	return Discover(names)
}

// List returns all credential files ordered by index.
func (s *Store) List() ([]Entry, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, name := range names {
		if index, ok := ParseFilename(name); ok {
			entries = append(entries, Entry{Index: index, File: name})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

// Exists reports whether the credential file for index exists.
func (s *Store) Exists(index int) bool {
	info, err := os.Stat(s.Path(index))
	return err == nil && info.Mode().IsRegular()
}

// Load reads and decodes the credential file for index.
func (s *Store) Load(index int) (*Record, error) {
	path := s.Path(index)
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return &rec, nil
}

// Save atomically replaces the credential file for index, keeping the name
// of an existing file.
func (s *Store) Save(index int, rec *Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}
	return util.AtomicWriteJSON(s.Path(index), rec)
}

// NextIndex returns the index a new credential would receive:
// one past the current maximum, or 0 for an empty store.
func (s *Store) NextIndex() int {
	if latest, ok := s.Latest(); ok {
		return latest.Index + 1
	}
	return 0
}

// Create stores rec under a newly allocated index. Allocation and write
// happen under a file lock so concurrent creators never pick the same index.
func (s *Store) Create(rec *Record) (Entry, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("creating credential dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(s.dir, lockName))
	if err := fileLock.Lock(); err != nil {
		return Entry{}, fmt.Errorf("locking credential dir: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	index := s.NextIndex()
	if err := s.Save(index, rec); err != nil {
		return Entry{}, err
	}
	return Entry{Index: index, File: Filename(index)}, nil
}
