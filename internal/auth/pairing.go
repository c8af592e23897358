package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrPairCodeUnknown means the code was never issued or already claimed.
	ErrPairCodeUnknown = errors.New("unknown pairing code")
	// ErrPairCodeExpired means the code outlived its window.
	ErrPairCodeExpired = errors.New("pairing code expired")
)

// PairingStore tracks the six digit codes shown on the head unit display.
// A code is single-use: claiming it removes it whether or not it was still
// within its window.
type PairingStore struct {
	mu    sync.Mutex
	codes map[string]time.Time
	ttl   time.Duration
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{
		codes: make(map[string]time.Time),
		ttl:   ttl,
	}
}

// Create issues a fresh pairing code valid for the store's TTL.
func (store *PairingStore) Create() (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for attempts := 0; attempts < 10; attempts++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		if _, exists := store.codes[code]; exists {
			continue
		}
		store.codes[code] = time.Now().Add(store.ttl)
		return code, nil
	}
	return "", fmt.Errorf("unable to generate unique pairing code")
}

// Claim consumes a pairing code. The code is removed on every outcome except
// "unknown", so a failed claim cannot be retried.
func (store *PairingStore) Claim(code string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	expiresAt, ok := store.codes[code]
	if !ok {
		return ErrPairCodeUnknown
	}
	delete(store.codes, code)
	if time.Now().After(expiresAt) {
		return ErrPairCodeExpired
	}
	return nil
}

// StartCleanup drops expired codes periodically until the context is canceled.
func (store *PairingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.CleanupExpired()
			case <-ctx.Done():
				store.Clear()
				return
			}
		}
	}()
}

// CleanupExpired removes codes past their window.
func (store *PairingStore) CleanupExpired() {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now()
	for code, expiresAt := range store.codes {
		if now.After(expiresAt) {
			delete(store.codes, code)
		}
	}
}

// Clear wipes every pending code.
func (store *PairingStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.codes = make(map[string]time.Time)
}

// Pending returns the number of outstanding codes.
func (store *PairingStore) Pending() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.codes)
}

func randomPairingCode() (string, error) {
	max := big.NewInt(900000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
