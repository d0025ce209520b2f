package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const ServiceName = "mailrow"

// ErrNotFound is returned when the keyring has no password for the account.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes account passwords.
type Store struct {
	ring keyring.Keyring
}

// Open returns the system keyring, falling back to an encrypted file under fileDir.
func Open(fileDir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("mailrow-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Key names the keyring item for an account on a host.
func Key(host, user string) string {
	return user + "@" + host
}

func (s *Store) Password(host, user string) (string, error) {
	item, err := s.ring.Get(Key(host, user))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%s: %w", Key(host, user), ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", Key(host, user), err)
	}
	return string(item.Data), nil
}

func (s *Store) SetPassword(host, user, password string) error {
	err := s.ring.Set(keyring.Item{
		Key:   Key(host, user),
		Data:  []byte(password),
		Label: "mailrow " + Key(host, user),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", Key(host, user), err)
	}
	return nil
}
