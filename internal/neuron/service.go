package neuron

import (
	"context"
	"fmt"

	"stakingengine/internal/address"
	"stakingengine/internal/domain"
	"stakingengine/internal/store"
)

// Service implements the NNS operator actions described in §6:
// stake_to_nns_neuron, sync_nns_neuron_by_pool_id, add/remove hotkey, and
// increase dissolve delay. It also satisfies scheduler.NeuronSyncer.
type Service struct {
	store    store.Store
	gateway  Gateway
	canister []byte
}

// NewService constructs a neuron operator service over the governance
// gateway. canister is this engine's own on-chain identity, used to derive
// each pool's neuron sub-account.
func NewService(s store.Store, gateway Gateway, canister []byte) *Service {
	return &Service{store: s, gateway: gateway, canister: canister}
}

// StakeToNNSNeuron claims (or refreshes) the pool's governance neuron and
// disburses amount from the pool's available funds into it, recording the
// pool-ledger entry and incrementing nns_neuron_occupied.
func (s *Service) StakeToNNSNeuron(ctx context.Context, poolID uint64, amount int64) (*domain.Pool, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.AvailableFunds() < amount {
		return nil, fmt.Errorf("neuron: pool %d has insufficient available funds for neuron stake", poolID)
	}
	if pool.NeuronID == "" {
		sub := address.DeriveNeuronSubAccount(s.canister, poolID)
		neuronID, err := s.gateway.ClaimOrRefresh(ctx, sub[:])
		if err != nil {
			return nil, fmt.Errorf("neuron: claim neuron for pool %d: %w", poolID, err)
		}
		pool.NeuronID = neuronID
	}
	if err := s.gateway.DisburseToNeuron(ctx, pool.NeuronID, amount); err != nil {
		return nil, fmt.Errorf("neuron: disburse to pool %d neuron: %w", poolID, err)
	}
	pool.NNSNeuronOccupied += amount
	if err := s.store.PutPool(ctx, pool); err != nil {
		return nil, err
	}
	if err := s.store.AppendPoolLedgerEntry(ctx, &domain.PoolLedgerEntry{
		PoolID:       poolID,
		SignedAmount: -amount,
		Kind:         domain.LedgerNNSNeuronStake,
		NeuronID:     pool.NeuronID,
	}); err != nil {
		return nil, err
	}
	return pool, nil
}

// SyncPool reconciles a single pool's neuron_occupied snapshot against the
// governance canister's live neuron state. Satisfies scheduler.NeuronSyncer.
func (s *Service) SyncPool(ctx context.Context, poolID uint64) error {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.NeuronID == "" {
		return nil
	}
	full, err := s.gateway.GetFullNeuron(ctx, pool.NeuronID)
	if err != nil {
		return fmt.Errorf("neuron: sync pool %d: %w", poolID, err)
	}
	if full.StakeE8s == pool.NNSNeuronOccupied {
		return nil
	}
	pool.NNSNeuronOccupied = full.StakeE8s
	return s.store.PutPool(ctx, pool)
}

// AddHotkey delegates to the governance canister's AddHotKey configure call.
func (s *Service) AddHotkey(ctx context.Context, poolID uint64, principal string) error {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.NeuronID == "" {
		return fmt.Errorf("neuron: pool %d has no neuron", poolID)
	}
	return s.gateway.AddHotKey(ctx, pool.NeuronID, principal)
}

// RemoveHotkey delegates to the governance canister's RemoveHotKey
// configure call.
func (s *Service) RemoveHotkey(ctx context.Context, poolID uint64, principal string) error {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.NeuronID == "" {
		return fmt.Errorf("neuron: pool %d has no neuron", poolID)
	}
	return s.gateway.RemoveHotKey(ctx, pool.NeuronID, principal)
}

// IncreaseDissolveDelay delegates to the governance canister's
// IncreaseDissolveDelay configure call.
func (s *Service) IncreaseDissolveDelay(ctx context.Context, poolID uint64, additionalSeconds int64) error {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.NeuronID == "" {
		return fmt.Errorf("neuron: pool %d has no neuron", poolID)
	}
	return s.gateway.IncreaseDissolveDelay(ctx, pool.NeuronID, additionalSeconds)
}
