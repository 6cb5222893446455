package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const idlFile = "idl-cache.json"

// IDLStore handles reading from and writing to the IDL cache file.
type IDLStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewIDLStore initializes a new IDLStore.
func NewIDLStore(configDir string) (*IDLStore, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &IDLStore{
		filePath: filepath.Join(configDir, idlFile),
	}, nil
}

// readData reads the entire cache file and unmarshals it.
func (s *IDLStore) readData() (*IDLData, error) {
	data := &IDLData{
		IDLs: make(map[string]json.RawMessage),
	}

	file, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("failed to read IDL cache file: %w", err)
	}

	if len(file) == 0 {
		return data, nil
	}

	if err := json.Unmarshal(file, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IDL cache: %w", err)
	}

	if data.IDLs == nil {
		data.IDLs = make(map[string]json.RawMessage)
	}

	return data, nil
}

// SaveIDL caches an IDL document under a program address.
func (s *IDLStore) SaveIDL(program string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readData()
	if err != nil {
		return err
	}

	data.IDLs[program] = doc

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal IDL cache: %w", err)
	}

	if err := os.WriteFile(s.filePath, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write IDL cache file: %w", err)
	}
	return nil
}

// GetIDL retrieves a cached IDL document by program address.
func (s *IDLStore) GetIDL(program string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.readData()
	if err != nil {
		return nil, err
	}

	doc, ok := data.IDLs[program]
	if !ok {
		return nil, fmt.Errorf("no cached IDL for program '%s'", program)
	}

	return doc, nil
}

// GetAllIDLs returns every cached IDL document.
func (s *IDLStore) GetAllIDLs() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.readData()
	if err != nil {
		return nil, err
	}
	return data.IDLs, nil
}
