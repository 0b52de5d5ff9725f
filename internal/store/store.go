// Package store persists subscriptions and per-target delivery history as a
// single JSON document.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Destinations is the set of delivery endpoints subscribed to one target.
type Destinations struct {
	Groups  []string `json:"groups"`
	Friends []string `json:"friends"`
}

// document is the on-disk shape.
type document struct {
	Subscriptions map[string]*Destinations `json:"subscriptions"`
	History       map[string]string        `json:"history"`
}

// Store is a JSON-file-backed subscription registry. All methods are safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads the store at path, starting empty when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		doc: document{
			Subscriptions: make(map[string]*Destinations),
			History:       make(map[string]string),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parsing store: %w", err)
	}
	if s.doc.Subscriptions == nil {
		s.doc.Subscriptions = make(map[string]*Destinations)
	}
	if s.doc.History == nil {
		s.doc.History = make(map[string]string)
	}
	return s, nil
}

// Add subscribes a destination to target. class is "group" or "friend".
// Duplicate additions are no-ops.
func (s *Store) Add(target, class, destID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.doc.Subscriptions[target]
	if d == nil {
		d = &Destinations{}
		s.doc.Subscriptions[target] = d
	}

	switch class {
	case "group":
		if containsString(d.Groups, destID) {
			return nil
		}
		d.Groups = append(d.Groups, destID)
	case "friend":
		if containsString(d.Friends, destID) {
			return nil
		}
		d.Friends = append(d.Friends, destID)
	default:
		return fmt.Errorf("unknown destination class %q", class)
	}

	return s.save()
}

// Remove unsubscribes a destination from target. When the target's last
// destination goes, the whole record and its history entry go with it.
func (s *Store) Remove(target, class, destID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.doc.Subscriptions[target]
	if d == nil {
		return nil
	}

	switch class {
	case "group":
		d.Groups = removeString(d.Groups, destID)
	case "friend":
		d.Friends = removeString(d.Friends, destID)
	default:
		return fmt.Errorf("unknown destination class %q", class)
	}

	if len(d.Groups) == 0 && len(d.Friends) == 0 {
		delete(s.doc.Subscriptions, target)
		delete(s.doc.History, target)
	}

	return s.save()
}

// LastSeen returns the newest delivered content id for target, or "".
func (s *Store) LastSeen(target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.History[target]
}

// SetLastSeen records the newest delivered content id for target.
func (s *Store) SetLastSeen(target, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.History[target] = contentID
	return s.save()
}

// Targets returns all subscribed targets in stable order.
func (s *Store) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.doc.Subscriptions))
	for t := range s.doc.Subscriptions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DestinationsFor returns a copy of the destinations subscribed to target.
func (s *Store) DestinationsFor(target string) Destinations {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.doc.Subscriptions[target]
	if d == nil {
		return Destinations{}
	}
	return Destinations{
		Groups:  append([]string(nil), d.Groups...),
		Friends: append([]string(nil), d.Friends...),
	}
}

// save writes the whole document atomically. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "subscriptions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp store: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store: %w", err)
	}
	return nil
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
