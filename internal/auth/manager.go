// Package auth guards the control socket. Clients pair once to receive a
// bearer token and present it on every subsequent request; only token
// hashes ever touch disk.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	tokenBytes      = 32 // 256-bit tokens
	maxAuthFailures = 5
	lockoutDuration = 60 * time.Second
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Manager handles pairing and token validation. The control socket is a
// local unix socket with no per-peer address, so repeated failures lock
// out authentication globally rather than per client.
type Manager struct {
	store    *Store
	testMode bool

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

// NewManager creates an auth manager backed by store. In test mode
// pairing is approved without notifying the user.
func NewManager(store *Store, testMode bool) *Manager {
	return &Manager{
		store:    store,
		testMode: testMode,
	}
}

// Pair registers a new client and returns its token and ID. Outside test
// mode the user is notified so an unexpected pairing does not go unseen;
// requiresApproval reports whether that notification was attempted.
func (m *Manager) Pair(clientName string) (token, clientID string, requiresApproval bool, err error) {
	clientID = generateClientID()

	token, err = generateToken()
	if err != nil {
		return "", "", false, fmt.Errorf("failed to generate token: %w", err)
	}

	if m.testMode {
		if err := m.store.AddClient(clientID, clientName, token); err != nil {
			return "", "", false, fmt.Errorf("failed to store client: %w", err)
		}
		return token, clientID, false, nil
	}

	if err := ShowPairingNotification(clientName); err != nil {
		// Not critical; headless systems have no notification daemon.
		log.Printf("[AUTH] Failed to show pairing notification: %v", err)
	}

	if err := m.store.AddClient(clientID, clientName, token); err != nil {
		return "", "", false, fmt.Errorf("failed to store client: %w", err)
	}

	log.Printf("[AUTH] Paired client %q (%s)", clientName, clientID)
	return token, clientID, true, nil
}

// ValidateToken checks whether token belongs to a paired client.
func (m *Manager) ValidateToken(token string) bool {
	if token == "" {
		return false
	}
	return m.store.ValidateToken(token)
}

// RecordFailure counts a failed authentication attempt. Hitting the
// failure limit locks authentication out for a cooldown period.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.failures >= maxAuthFailures {
		m.lockedUntil = time.Now().Add(lockoutDuration)
		m.failures = 0
	}
}

// IsLockedOut reports whether authentication is currently locked out.
func (m *Manager) IsLockedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lockedUntil.IsZero() {
		return false
	}
	if time.Now().After(m.lockedUntil) {
		m.lockedUntil = time.Time{}
		return false
	}
	return true
}

// RevokeClient removes a client's access.
func (m *Manager) RevokeClient(clientID string) error {
	return m.store.RemoveClient(clientID)
}

// ListClients returns all paired clients.
func (m *Manager) ListClients() []ClientInfo {
	return m.store.ListClients()
}

func generateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// HashToken returns the SHA-256 hex digest stored in place of a token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
