package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/oauth2"

	"inksync/internal/store"
)

const tokenFile = "credentials.json"

// FileSource looks up remote credentials from a token file in the inksync
// directory, one entry per remote name. An absent file or entry means sync
// is unavailable for that remote, nothing more.
type FileSource struct {
	dir string
}

type entry struct {
	Username string        `json:"username,omitempty"`
	Token    *oauth2.Token `json:"token"`
}

// New returns a source rooted at dir; empty dir means ~/.inksync.
func New(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) path() (string, error) {
	dir := s.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home dir: %w", err)
		}
		dir = filepath.Join(home, ".inksync")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create credential dir: %w", err)
	}

	return filepath.Join(dir, tokenFile), nil
}

func (s *FileSource) load() (map[string]entry, error) {
	path, err := s.path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]entry{}, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	entries := make(map[string]entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return entries, nil
}

func (s *FileSource) Lookup(_ context.Context, remote string) (store.Credential, error) {
	entries, err := s.load()
	if err != nil {
		return store.Credential{}, err
	}

	e, ok := entries[remote]
	if !ok || e.Token == nil || !e.Token.Valid() {
		return store.Credential{}, store.ErrNoCredential
	}

	return store.Credential{Username: e.Username, Token: e.Token.AccessToken}, nil
}

// Save stores or replaces the token for a remote. The file is chmod 0600;
// it holds secrets.
func (s *FileSource) Save(remote, username string, token *oauth2.Token) error {
	entries, err := s.load()
	if err != nil {
		return err
	}

	entries[remote] = entry{Username: username, Token: token}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	path, err := s.path()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

func (s *FileSource) Remotes() ([]string, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}
