// Package address derives the deterministic 32-byte sub-accounts and
// on-chain account identifiers used to route funds to staking pools and
// staking accounts, and the governance-neuron sub-account for a pool.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SubAccount is the 32-byte deterministic sub-account identifier derived for
// a staking pool or staking account.
type SubAccount [32]byte

// neuronDomainTag is the domain-separation prefix byte prepended to the
// governance-neuron derivation input, matching the tag-prefixing convention
// used elsewhere in this codebase for hashed derivations.
const neuronDomainTag = 0x0c

const neuronDomainLabel = "neuron-stake"

// PoolKind renders the pool sub-account derivation suffix for id.
func PoolKind(id uint64) string {
	return "staking_pool_" + strconv.FormatUint(id, 10)
}

// AccountKind renders the staking-account sub-account derivation suffix for id.
func AccountKind(id uint64) string {
	return "staking_account_" + strconv.FormatUint(id, 10)
}

// DeriveSubAccount derives the 32-byte sub-account for a kind suffix. If the
// suffix parses as an unsigned 64-bit integer, bytes 0..8 hold its
// big-endian representation and the remainder is zero-padded; otherwise the
// sub-account is the SHA-256 digest of the UTF-8 suffix.
func DeriveSubAccount(suffix string) SubAccount {
	var out SubAccount
	if v, err := strconv.ParseUint(suffix, 10, 64); err == nil {
		binary.BigEndian.PutUint64(out[:8], v)
		return out
	}
	digest := sha256.Sum256([]byte(suffix))
	copy(out[:], digest[:])
	return out
}

// DeriveNeuronSubAccount derives the governance-neuron sub-account for a
// pool: SHA-256 over the domain-separated tuple
// [0x0c, "neuron-stake", canister_bytes, pool_id_be_8].
func DeriveNeuronSubAccount(canister []byte, poolID uint64) SubAccount {
	buf := make([]byte, 0, 1+len(neuronDomainLabel)+len(canister)+8)
	buf = append(buf, neuronDomainTag)
	buf = append(buf, neuronDomainLabel...)
	buf = append(buf, canister...)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], poolID)
	buf = append(buf, idBytes[:]...)
	digest := sha256.Sum256(buf)
	var out SubAccount
	copy(out[:], digest[:])
	return out
}

// AccountIdentifier is the canonical ledger-facing identifier for a
// (canister, sub-account) pair: the Keccak-256 hash of the canister id
// concatenated with the sub-account, encoded for transport as a bech32
// string under the "stake" human-readable prefix.
type AccountIdentifier struct {
	hash [32]byte
}

// DeriveAccountIdentifier computes the canonical ledger account identifier
// for a canister and sub-account.
func DeriveAccountIdentifier(canister []byte, sub SubAccount) AccountIdentifier {
	buf := make([]byte, 0, len(canister)+len(sub))
	buf = append(buf, canister...)
	buf = append(buf, sub[:]...)
	return AccountIdentifier{hash: [32]byte(ethcrypto.Keccak256(buf))}
}

// Bytes returns the raw 32-byte identifier.
func (a AccountIdentifier) Bytes() []byte {
	return append([]byte(nil), a.hash[:]...)
}

const accountIdentifierHRP = "stake"

// String renders the identifier as a bech32 string, the same encoding
// scheme used elsewhere in this codebase for human-readable account forms.
func (a AccountIdentifier) String() string {
	conv, err := bech32.ConvertBits(a.hash[:], 8, 5, true)
	if err != nil {
		panic(fmt.Sprintf("address: convert bits: %v", err))
	}
	encoded, err := bech32.Encode(accountIdentifierHRP, conv)
	if err != nil {
		panic(fmt.Sprintf("address: bech32 encode: %v", err))
	}
	return encoded
}

// DecodeAccountIdentifier parses a bech32-encoded account identifier string
// produced by String.
func DecodeAccountIdentifier(s string) (AccountIdentifier, error) {
	hrp, decoded, err := bech32.Decode(s)
	if err != nil {
		return AccountIdentifier{}, fmt.Errorf("address: invalid bech32 string: %w", err)
	}
	if hrp != accountIdentifierHRP {
		return AccountIdentifier{}, fmt.Errorf("address: unexpected human-readable prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return AccountIdentifier{}, fmt.Errorf("address: convert bits: %w", err)
	}
	if len(conv) != 32 {
		return AccountIdentifier{}, fmt.Errorf("address: expected 32 decoded bytes, got %d", len(conv))
	}
	var id AccountIdentifier
	copy(id.hash[:], conv)
	return id, nil
}

// PoolAccount derives the on-chain account identifier for a staking pool.
func PoolAccount(canister []byte, poolID uint64) AccountIdentifier {
	sub := DeriveSubAccount(PoolKind(poolID))
	return DeriveAccountIdentifier(canister, sub)
}

// StakingAccount derives the on-chain account identifier for a staking
// account.
func StakingAccount(canister []byte, accountID uint64) AccountIdentifier {
	sub := DeriveSubAccount(AccountKind(accountID))
	return DeriveAccountIdentifier(canister, sub)
}

// NeuronAccount derives the on-chain account identifier for a pool's
// governance-neuron sub-account.
func NeuronAccount(canister []byte, poolID uint64) AccountIdentifier {
	sub := DeriveNeuronSubAccount(canister, poolID)
	return DeriveAccountIdentifier(canister, sub)
}
