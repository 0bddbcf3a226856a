package cryptox

import (
	"os"
	"strings"
	"sync"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// SetPepper sets the server-side secret appended to client secrets before
// hashing. An empty pepper is allowed.
func SetPepper(p string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepper = p
}

// LoadPepperFile reads the pepper from path. A missing path leaves the pepper
// empty so hashes produced by other tooling without a pepper still verify.
func LoadPepperFile(path string) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	SetPepper(strings.TrimSpace(string(b)))
	return nil
}

// GetPepper returns the configured pepper.
func GetPepper() string {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	return pepper
}
