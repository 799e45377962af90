// Package wallet manages the agent's ledger keys: loading private keys
// from disk through pluggable ledger backends and deriving the agent's
// identity from the resulting addresses.
package wallet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentforge-io/agentforge/engine/core"
)

// DefaultLedger is the ledger backend used when a project declares none.
const DefaultLedger = "ethereum"

// Crypto is one loaded key pair on a specific ledger.
type Crypto interface {
	// Ledger names the backend that produced this key pair.
	Ledger() string
	// Address is the ledger-native account address.
	Address() string
	// PublicKey is the hex-encoded public key.
	PublicKey() string
	// Sign signs an arbitrary message with the private key.
	Sign(message []byte) ([]byte, error)
}

// Backend loads key pairs for one ledger.
type Backend interface {
	Ledger() string
	// Load reads a private key from the file at path. A non-empty
	// password decrypts an encrypted key file; plaintext keys ignore it.
	Load(path, password string) (Crypto, error)
	// FromString parses a literal private key held in memory.
	FromString(raw string) (Crypto, error)
	// Generate creates a fresh key pair and writes it to path.
	Generate(path string) (Crypto, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{}
)

// RegisterBackend makes a ledger backend available by name. The ethereum
// backend self-registers; additional ledgers register from their own
// packages.
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Ledger()] = b
}

// LookupBackend returns the backend for a ledger id.
func LookupBackend(ledger string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[ledger]
	if !ok {
		known := make([]string, 0, len(backends))
		for name := range backends {
			known = append(known, name)
		}
		sort.Strings(known)
		return nil, core.NewError(
			fmt.Errorf("no ledger backend registered for %q, known backends: %v", ledger, known),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": ledger},
		)
	}
	return b, nil
}
