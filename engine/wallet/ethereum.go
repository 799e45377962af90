package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/agentforge-io/agentforge/engine/core"
)

func init() {
	RegisterBackend(&ethereumBackend{})
}

type ethereumBackend struct{}

func (b *ethereumBackend) Ledger() string { return "ethereum" }

// Load reads a hex private key from path. With a password the file is
// treated as an encrypted keystore file instead.
func (b *ethereumBackend) Load(path, password string) (Crypto, error) {
	if password == "" {
		key, err := ethcrypto.LoadECDSA(path)
		if err != nil {
			return nil, core.NewError(
				fmt.Errorf("failed to load ethereum private key from %s: %w", path, err),
				core.CodeConfigurationInvalid,
				map[string]any{"ledger": "ethereum", "path": path},
			)
		}
		return &ethereumCrypto{key: key}, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to read ethereum keystore file %s: %w", path, err),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": "ethereum", "path": path},
		)
	}
	key, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to decrypt ethereum keystore file %s: %w", path, err),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": "ethereum", "path": path},
		)
	}
	return &ethereumCrypto{key: key.PrivateKey}, nil
}

func (b *ethereumBackend) FromString(raw string) (Crypto, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("invalid ethereum private key: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": "ethereum"},
		)
	}
	return &ethereumCrypto{key: key}, nil
}

func (b *ethereumBackend) Generate(path string) (Crypto, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to generate ethereum key: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": "ethereum"},
		)
	}
	if err := ethcrypto.SaveECDSA(path, key); err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to save ethereum key to %s: %w", path, err),
			core.CodeConfigurationInvalid,
			map[string]any{"ledger": "ethereum", "path": path},
		)
	}
	return &ethereumCrypto{key: key}, nil
}

type ethereumCrypto struct {
	key *ecdsa.PrivateKey
}

func (c *ethereumCrypto) Ledger() string { return "ethereum" }

func (c *ethereumCrypto) Address() string {
	return ethcrypto.PubkeyToAddress(c.key.PublicKey).Hex()
}

func (c *ethereumCrypto) PublicKey() string {
	return hex.EncodeToString(ethcrypto.FromECDSAPub(&c.key.PublicKey))
}

// Sign signs the keccak256 digest of the message.
func (c *ethereumCrypto) Sign(message []byte) ([]byte, error) {
	digest := ethcrypto.Keccak256(message)
	sig, err := ethcrypto.Sign(digest, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}
