package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wanemu/internal/models"
)

// LinkStore is the WAN link registry: the persisted set of WanLink records
// plus the recorded management interface. The whole link set is always
// replaced atomically; records are never edited in place.
type LinkStore struct {
	mu   sync.Mutex
	path string
}

type linkFile struct {
	MgmtInterface string           `json:"mgmt_interface,omitempty"`
	WanLinks      []models.WanLink `json:"wan_links"`
}

func NewLinkStore(configDir string) *LinkStore {
	return &LinkStore{path: filepath.Join(configDir, "config.json")}
}

// Load returns the current registry. A missing file is an empty registry.
func (s *LinkStore) Load() (string, []models.WanLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return "", nil, err
	}
	return f.MgmtInterface, f.WanLinks, nil
}

// Links returns the link records only.
func (s *LinkStore) Links() ([]models.WanLink, error) {
	_, links, err := s.Load()
	return links, err
}

// Find returns the link whose inner interface is inner.
func (s *LinkStore) Find(inner string) (*models.WanLink, error) {
	links, err := s.Links()
	if err != nil {
		return nil, err
	}
	for i := range links {
		if links[i].Inner == inner {
			return &links[i], nil
		}
	}
	return nil, nil
}

// ReplaceAll swaps in the full desired link set.
func (s *LinkStore) ReplaceAll(links []models.WanLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	f.WanLinks = links
	return s.write(f)
}

// SetManagement records the management interface name.
func (s *LinkStore) SetManagement(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	f.MgmtInterface = name
	return s.write(f)
}

// SetLastRequested stores the operator's exact requested values on the
// link owning inner, for display independent of kernel rounding.
func (s *LinkStore) SetLastRequested(inner string, req *models.ImpairmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	for i := range f.WanLinks {
		if f.WanLinks[i].Inner == inner {
			f.WanLinks[i].LastRequested = req
			return s.write(f)
		}
	}
	return nil
}

// ClearLastRequested drops the stored request for inner.
func (s *LinkStore) ClearLastRequested(inner string) error {
	return s.SetLastRequested(inner, nil)
}

// Reset drops the registry entirely.
func (s *LinkStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove registry: %w", err)
	}
	return nil
}

func (s *LinkStore) read() (*linkFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &linkFile{}, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	var f linkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return &f, nil
}

// write replaces the registry file atomically via a temp file and rename,
// so a crash mid-write never leaves a torn registry.
func (s *LinkStore) write(f *linkFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
