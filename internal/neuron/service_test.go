package neuron

import (
	"context"
	"path/filepath"
	"testing"

	"stakingengine/internal/domain"
	"stakingengine/internal/store"
)

type fakeGateway struct {
	neuronID   string
	stakeE8s   int64
	disbursed  int64
	hotkeys    []string
	configured int
}

func (f *fakeGateway) ClaimOrRefresh(ctx context.Context, subAccount []byte) (string, error) {
	return f.neuronID, nil
}
func (f *fakeGateway) DisburseToNeuron(ctx context.Context, neuronID string, amount int64) error {
	f.disbursed += amount
	f.stakeE8s += amount
	return nil
}
func (f *fakeGateway) AddHotKey(ctx context.Context, neuronID, principal string) error {
	f.hotkeys = append(f.hotkeys, principal)
	return nil
}
func (f *fakeGateway) RemoveHotKey(ctx context.Context, neuronID, principal string) error {
	f.configured++
	return nil
}
func (f *fakeGateway) IncreaseDissolveDelay(ctx context.Context, neuronID string, additionalSeconds int64) error {
	f.configured++
	return nil
}
func (f *fakeGateway) GetFullNeuron(ctx context.Context, neuronID string) (FullNeuron, error) {
	return FullNeuron{NeuronID: neuronID, StakeE8s: f.stakeE8s}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "entities.sqlite"), filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStakeToNNSNeuronClaimsAndDisburses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pool := &domain.Pool{ID: 1, PoolSize: 1000, StakedAmount: 500}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	gw := &fakeGateway{neuronID: "neuron-1"}
	svc := NewService(s, gw, []byte("canister"))

	updated, err := svc.StakeToNNSNeuron(ctx, 1, 200)
	if err != nil {
		t.Fatalf("stake to nns neuron: %v", err)
	}
	if updated.NeuronID != "neuron-1" || updated.NNSNeuronOccupied != 200 {
		t.Fatalf("unexpected pool state: %+v", updated)
	}
	if gw.disbursed != 200 {
		t.Fatalf("expected 200 disbursed, got %d", gw.disbursed)
	}
}

func TestStakeToNNSNeuronRejectsInsufficientAvailableFunds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pool := &domain.Pool{ID: 1, PoolSize: 1000, StakedAmount: 100}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	svc := NewService(s, &fakeGateway{neuronID: "neuron-1"}, []byte("canister"))
	if _, err := svc.StakeToNNSNeuron(ctx, 1, 500); err == nil {
		t.Fatalf("expected insufficient funds error")
	}
}

func TestSyncPoolReconcilesOccupiedAmount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pool := &domain.Pool{ID: 1, PoolSize: 1000, StakedAmount: 500, NeuronID: "neuron-1", NNSNeuronOccupied: 100}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	gw := &fakeGateway{stakeE8s: 250}
	svc := NewService(s, gw, []byte("canister"))
	if err := svc.SyncPool(ctx, 1); err != nil {
		t.Fatalf("sync pool: %v", err)
	}
	refreshed, err := s.GetPool(ctx, 1)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if refreshed.NNSNeuronOccupied != 250 {
		t.Fatalf("expected occupied 250, got %d", refreshed.NNSNeuronOccupied)
	}
}
