package address

import (
	"encoding/binary"
	"testing"
)

func TestDeriveSubAccountNumericSuffix(t *testing.T) {
	sub := DeriveSubAccount("42")
	if got := binary.BigEndian.Uint64(sub[:8]); got != 42 {
		t.Fatalf("expected big-endian 42 in leading bytes, got %d", got)
	}
	for _, b := range sub[8:] {
		if b != 0 {
			t.Fatalf("expected zero padding after the numeric id, got %v", sub)
		}
	}
}

func TestDeriveSubAccountNonNumericSuffix(t *testing.T) {
	sub := DeriveSubAccount("not-a-number")
	var zero SubAccount
	if sub == zero {
		t.Fatalf("expected a non-zero SHA-256 digest")
	}
}

func TestDeriveSubAccountDeterministic(t *testing.T) {
	a := DeriveSubAccount(PoolKind(7))
	b := DeriveSubAccount(PoolKind(7))
	if a != b {
		t.Fatalf("expected deterministic derivation, got %v != %v", a, b)
	}
}

func TestDeriveNeuronSubAccountDiffersPerPool(t *testing.T) {
	canister := []byte("canister-id")
	a := DeriveNeuronSubAccount(canister, 1)
	b := DeriveNeuronSubAccount(canister, 2)
	if a == b {
		t.Fatalf("expected distinct neuron sub-accounts per pool id")
	}
}

func TestAccountIdentifierRoundTrip(t *testing.T) {
	canister := []byte("canister-id")
	id := PoolAccount(canister, 1)
	encoded := id.String()

	decoded, err := DecodeAccountIdentifier(encoded)
	if err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	if decoded != id {
		t.Fatalf("round-trip mismatch: got %v, want %v", decoded, id)
	}
}

func TestPoolAndStakingAccountsDiffer(t *testing.T) {
	canister := []byte("canister-id")
	if PoolAccount(canister, 1) == StakingAccount(canister, 1) {
		t.Fatalf("expected pool and staking account identifiers to differ for the same id")
	}
}
