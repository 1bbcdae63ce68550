package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "skahactl"

// KeyringStore keeps the token pair in the OS keychain instead of the
// config file, selected via the token-storage setting. Expiries and client
// identity stay in the config either way.
type KeyringStore struct {
	// Account namespaces the entry, normally the issuer URL.
	Account string
}

type keyringEntry struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *KeyringStore) Save(access, refresh string) error {
	if s.Account == "" {
		return errors.New("keyring account is required")
	}
	content, err := json.Marshal(keyringEntry{Access: access, Refresh: refresh})
	if err != nil {
		return fmt.Errorf("failed to marshal keyring entry: %w", err)
	}
	return keyring.Set(keyringService, s.Account, string(content))
}

func (s *KeyringStore) Load() (access, refresh string, ok bool, err error) {
	if s.Account == "" {
		return "", "", false, errors.New("keyring account is required")
	}
	content, err := keyring.Get(keyringService, s.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	var entry keyringEntry
	if err := json.Unmarshal([]byte(content), &entry); err != nil {
		return "", "", false, fmt.Errorf("failed to parse keyring entry: %w", err)
	}
	return entry.Access, entry.Refresh, true, nil
}

func (s *KeyringStore) Delete() error {
	if s.Account == "" {
		return errors.New("keyring account is required")
	}
	err := keyring.Delete(keyringService, s.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
