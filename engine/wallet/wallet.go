package wallet

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Keys names the private keys one store loads, keyed by ledger id:
// key files on disk and literal in-memory keys.
type Keys struct {
	Paths    map[string]string
	Literals map[string]string
}

// CryptoStore holds loaded key pairs keyed by ledger id.
type CryptoStore struct {
	cryptos map[string]Crypto
}

// NewCryptoStore loads one key pair per entry of keys. Relative file
// paths resolve against dataDir; password decrypts encrypted key files.
// A literal key wins over a file registered for the same ledger.
func NewCryptoStore(keys Keys, dataDir, password string) (*CryptoStore, error) {
	store := &CryptoStore{cryptos: make(map[string]Crypto, len(keys.Paths)+len(keys.Literals))}
	ledgers := make([]string, 0, len(keys.Paths))
	for ledger := range keys.Paths {
		ledgers = append(ledgers, ledger)
	}
	sort.Strings(ledgers)
	for _, ledger := range ledgers {
		backend, err := LookupBackend(ledger)
		if err != nil {
			return nil, err
		}
		path := keys.Paths[ledger]
		if !filepath.IsAbs(path) && dataDir != "" {
			path = filepath.Join(dataDir, path)
		}
		crypto, err := backend.Load(path, password)
		if err != nil {
			return nil, err
		}
		store.cryptos[ledger] = crypto
	}
	literals := make([]string, 0, len(keys.Literals))
	for ledger := range keys.Literals {
		literals = append(literals, ledger)
	}
	sort.Strings(literals)
	for _, ledger := range literals {
		backend, err := LookupBackend(ledger)
		if err != nil {
			return nil, err
		}
		crypto, err := backend.FromString(keys.Literals[ledger])
		if err != nil {
			return nil, err
		}
		store.cryptos[ledger] = crypto
	}
	return store, nil
}

// Crypto returns the key pair for a ledger.
func (s *CryptoStore) Crypto(ledger string) (Crypto, bool) {
	c, ok := s.cryptos[ledger]
	return c, ok
}

// Addresses maps each loaded ledger to its account address.
func (s *CryptoStore) Addresses() map[string]string {
	out := make(map[string]string, len(s.cryptos))
	for ledger, c := range s.cryptos {
		out[ledger] = c.Address()
	}
	return out
}

// Ledgers returns the loaded ledger ids, sorted.
func (s *CryptoStore) Ledgers() []string {
	out := make([]string, 0, len(s.cryptos))
	for ledger := range s.cryptos {
		out = append(out, ledger)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of loaded key pairs.
func (s *CryptoStore) Len() int { return len(s.cryptos) }

// Wallet bundles the agent's main keys with the separate set used by
// connections. Connection keys never sign on behalf of the agent's
// identity.
type Wallet struct {
	Main        *CryptoStore
	Connections *CryptoStore
}

// New loads both stores from their key sets.
func New(main, connection Keys, dataDir, password string) (*Wallet, error) {
	mainStore, err := NewCryptoStore(main, dataDir, password)
	if err != nil {
		return nil, err
	}
	conns, err := NewCryptoStore(connection, dataDir, password)
	if err != nil {
		return nil, err
	}
	return &Wallet{Main: mainStore, Connections: conns}, nil
}

// Identity is the agent's public face: its name and per-ledger
// addresses, with one ledger marked as default.
type Identity struct {
	Name          string
	Addresses     map[string]string
	PublicKeys    map[string]string
	DefaultLedger string
}

// Address returns the address on the default ledger.
func (i *Identity) Address() string {
	return i.Addresses[i.DefaultLedger]
}

// NewIdentity derives an identity from the wallet's main store. It fails
// when the store holds no keys or lacks a key on the default ledger.
func NewIdentity(name string, w *Wallet, defaultLedger string) (*Identity, error) {
	addresses := w.Main.Addresses()
	if len(addresses) == 0 {
		return nil, core.NewError(
			fmt.Errorf("cannot build identity for agent %q: the wallet holds no keys", name),
			core.CodeConfigurationInvalid,
			map[string]any{"agent": name},
		)
	}
	if _, ok := addresses[defaultLedger]; !ok {
		return nil, core.NewError(
			fmt.Errorf("cannot build identity for agent %q: no key for default ledger %q", name, defaultLedger),
			core.CodeConfigurationInvalid,
			map[string]any{"agent": name, "default_ledger": defaultLedger},
		)
	}
	publicKeys := make(map[string]string, len(addresses))
	for _, ledger := range w.Main.Ledgers() {
		c, _ := w.Main.Crypto(ledger)
		publicKeys[ledger] = c.PublicKey()
	}
	return &Identity{
		Name:          name,
		Addresses:     addresses,
		PublicKeys:    publicKeys,
		DefaultLedger: defaultLedger,
	}, nil
}
