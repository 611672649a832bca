// Package session persists the login token and per-finding notes under the
// user's ~/.vulntrack directory. Files are owner-only.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	tokenFile = "session.json"
	notesFile = "notes.json"
)

// Store reads and writes session files in Dir.
type Store struct {
	Dir string
}

// DefaultDir returns ~/.vulntrack.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vulntrack"), nil
}

// Open returns a store rooted at dir, or at DefaultDir when dir is empty.
func Open(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{Dir: dir}, nil
}

// Token is the persisted login.
type Token struct {
	Value   string    `json:"token"`
	APIURL  string    `json:"api_url,omitempty"`
	User    string    `json:"user,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// LoadToken returns the saved token. A missing file is not an error.
func (s *Store) LoadToken() (Token, error) {
	var t Token
	err := s.read(tokenFile, &t)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, nil
	}
	return t, err
}

// SaveToken writes t, stamping SavedAt.
func (s *Store) SaveToken(t Token) error {
	t.SavedAt = time.Now().UTC()
	return s.write(tokenFile, t)
}

// ClearToken removes the saved token. Clearing twice is fine.
func (s *Store) ClearToken() error {
	err := os.Remove(filepath.Join(s.Dir, tokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Note is free text attached to a finding, keyed by its ID.
type Note struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Host    string    `json:"host"`
	Text    string    `json:"text"`
	Updated time.Time `json:"updated"`
}

// Notes maps a finding ID to its note.
type Notes map[string]Note

// Sorted returns the notes newest first.
func (n Notes) Sorted() []Note {
	out := make([]Note, 0, len(n))
	for _, v := range n {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.After(out[j].Updated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LoadNotes returns all notes; an unreadable or missing file yields none.
func (s *Store) LoadNotes() Notes {
	notes := Notes{}
	_ = s.read(notesFile, &notes) //nolint:errcheck // fall back to empty
	if notes == nil {
		notes = Notes{}
	}
	return notes
}

// SaveNotes overwrites the notes file.
func (s *Store) SaveNotes(n Notes) error {
	return s.write(notesFile, n)
}

// SetNote stores text for a finding. Empty text deletes the note.
func (s *Store) SetNote(id, name, host, text string) error {
	if text == "" {
		return s.DeleteNote(id)
	}
	notes := s.LoadNotes()
	notes[id] = Note{ID: id, Name: name, Host: host, Text: text, Updated: time.Now().UTC()}
	return s.SaveNotes(notes)
}

// DeleteNote drops a note. Unknown IDs are ignored.
func (s *Store) DeleteNote(id string) error {
	notes := s.LoadNotes()
	if _, ok := notes[id]; !ok {
		return nil
	}
	delete(notes, id)
	return s.SaveNotes(notes)
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) write(name string, v any) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, name), data, 0600)
}
