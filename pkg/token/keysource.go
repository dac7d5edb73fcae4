package token

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KeySource supplies the 32-byte symmetric key used for token encryption.
type KeySource interface {
	Key() []byte
}

// StaticKey is a fixed key, typically derived from a configured secret.
type StaticKey []byte

// Key returns the key bytes.
func (k StaticKey) Key() []byte { return k }

// DeriveKey turns an arbitrary secret string into a 32-byte key suitable for
// A256GCM, the same way the session password is stretched elsewhere.
func DeriveKey(secret string) StaticKey {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// FileKey reads the key material from a file and hot-reloads it when the file
// changes, so the key can be rotated without a restart. Tokens encrypted under
// the previous key stop verifying after rotation; that is the intended effect
// of a rotation.
type FileKey struct {
	path    string
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	key []byte

	// OnReload, when set, is called after every successful reload.
	OnReload func()
}

// NewFileKey loads the key file and starts watching it for changes.
func NewFileKey(path string) (*FileKey, error) {
	fk := &FileKey{path: path}
	if err := fk.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create key watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch key file: %w", err)
	}
	fk.watcher = watcher

	go fk.watch()
	return fk, nil
}

func (fk *FileKey) load() error {
	raw, err := os.ReadFile(fk.path)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	sum := sha256.Sum256(raw)

	fk.mu.Lock()
	fk.key = sum[:]
	fk.mu.Unlock()
	return nil
}

func (fk *FileKey) watch() {
	for {
		select {
		case event, ok := <-fk.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				// A failed reload keeps the previous key; the old material is
				// still the only thing outstanding tokens verify against.
				if err := fk.load(); err == nil && fk.OnReload != nil {
					fk.OnReload()
				}
			}
		case _, ok := <-fk.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Key returns the current key bytes.
func (fk *FileKey) Key() []byte {
	fk.mu.RLock()
	defer fk.mu.RUnlock()
	return fk.key
}

// Close stops the file watcher.
func (fk *FileKey) Close() error {
	if fk.watcher != nil {
		return fk.watcher.Close()
	}
	return nil
}
