package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Client is a paired client as stored on disk. Only the token hash is
// persisted; the token itself exists nowhere but the client's keychain.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TokenHash string    `json:"tokenHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClientInfo is the hash-free view of a client handed to callers.
type ClientInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists paired clients to a JSON file.
type Store struct {
	path    string
	mu      sync.RWMutex
	clients map[string]*Client // keyed by client ID
}

// NewStore opens the client store at path, loading any existing file.
func NewStore(path string) (*Store, error) {
	store := &Store{
		path:    path,
		clients: make(map[string]*Client),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load client store: %w", err)
		}
	}

	return store, nil
}

// AddClient records a newly paired client.
func (s *Store) AddClient(clientID, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[clientID] = &Client{
		ID:        clientID,
		Name:      name,
		TokenHash: HashToken(token),
		CreatedAt: time.Now(),
	}

	return s.saveLocked()
}

// RemoveClient deletes a client by ID.
func (s *Store) RemoveClient(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[clientID]; !exists {
		return ErrClientNotFound
	}

	delete(s.clients, clientID)

	return s.saveLocked()
}

// ValidateToken reports whether token matches any paired client.
func (s *Store) ValidateToken(token string) bool {
	_, err := s.ClientByToken(token)
	return err == nil
}

// ClientByToken returns the client a token belongs to.
func (s *Store) ClientByToken(token string) (ClientInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokenHash := HashToken(token)
	for _, client := range s.clients {
		if client.TokenHash == tokenHash {
			return ClientInfo{ID: client.ID, Name: client.Name, CreatedAt: client.CreatedAt}, nil
		}
	}

	return ClientInfo{}, ErrClientNotFound
}

// ListClients returns all paired clients.
func (s *Store) ListClients() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, ClientInfo{
			ID:        client.ID,
			Name:      client.Name,
			CreatedAt: client.CreatedAt,
		})
	}

	return clients
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored struct {
		Clients []*Client `json:"clients"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse client store: %w", err)
	}

	s.clients = make(map[string]*Client)
	for _, client := range stored.Clients {
		s.clients[client.ID] = client
	}

	return nil
}

func (s *Store) saveLocked() error {
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}

	stored := struct {
		Clients []*Client `json:"clients"`
	}{Clients: clients}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal client store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write client store: %w", err)
	}

	return nil
}
