package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions on behalf of the relay account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-memory secp256k1 key. The key never leaves the
// signer.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner creates a signer from a hex-encoded private key, with or
// without 0x prefix.
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeySignerFromKey(key), nil
}

// NewKeySignerFromKey creates a signer from an existing key.
func NewKeySignerFromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the relay account address.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx signs tx with EIP-155 replay protection for chainID.
func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
}

func (s *KeySigner) String() string {
	return fmt.Sprintf("KeySigner(%s)", s.address.Hex())
}
