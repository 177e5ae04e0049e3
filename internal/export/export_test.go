package export

import (
	"strings"
	"testing"
	"time"

	"stakingengine/internal/domain"
)

func sampleReward(amount int64) *domain.Reward {
	return &domain.Reward{
		ID:           1,
		PoolID:       7,
		AccountID:    42,
		Owner:        "stake1owner",
		RewardCrypto: "ICP",
		RewardAmount: amount,
		Day:          "2026-07-29",
		Status:       domain.RewardReceived,
		PCTxID:       "pc-tx-1",
		CreatedAt:    time.Unix(1700, 0).UTC(),
	}
}

func TestRewardsCSV(t *testing.T) {
	data, checksum, err := RewardsCSV([]*domain.Reward{sampleReward(10)})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, "id,pool_id,account_id,owner,reward_crypto,reward_amount,day,status,pc_tx_id,created_at") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, "ICP") {
		t.Fatalf("missing reward crypto: %s", output)
	}
}

func TestRewardsJSONL(t *testing.T) {
	data, checksum, err := RewardsJSONL([]*domain.Reward{sampleReward(25)})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, `"reward_amount":25`) {
		t.Fatalf("unexpected payload: %s", output)
	}
	if !strings.Contains(output, `"status":"Received"`) {
		t.Fatalf("missing status: %s", output)
	}
}

func TestEventsCSVAndJSONL(t *testing.T) {
	events := []*domain.Event{{
		ID:        1,
		Principal: "stake1owner",
		Type:      domain.EventStake,
		Payload:   map[string]string{"pool_id": "7"},
		EventTime: time.Unix(1700, 0).UTC(),
	}}
	if _, checksum, err := EventsCSV(events); err != nil || checksum == "" {
		t.Fatalf("events csv: checksum=%q err=%v", checksum, err)
	}
	if _, checksum, err := EventsJSONL(events); err != nil || checksum == "" {
		t.Fatalf("events jsonl: checksum=%q err=%v", checksum, err)
	}
}

func TestPoolLedgerCSVAndJSONL(t *testing.T) {
	entries := []*domain.PoolLedgerEntry{{
		Seq:            1,
		PoolID:         7,
		SignedAmount:   -1000,
		RunningBalance: 9000,
		Kind:           domain.LedgerStaking,
		AccountID:      42,
		CreatedAt:      time.Unix(1700, 0).UTC(),
	}}
	data, checksum, err := PoolLedgerCSV(entries)
	if err != nil || checksum == "" {
		t.Fatalf("ledger csv: checksum=%q err=%v", checksum, err)
	}
	if !strings.Contains(string(data), "Staking") {
		t.Fatalf("missing kind: %s", data)
	}
	if _, checksum, err := PoolLedgerJSONL(entries); err != nil || checksum == "" {
		t.Fatalf("ledger jsonl: checksum=%q err=%v", checksum, err)
	}
}

func TestRewardsParquetWritesFile(t *testing.T) {
	path := t.TempDir() + "/rewards.parquet"
	if err := RewardsParquet(path, []*domain.Reward{sampleReward(10)}); err != nil {
		t.Fatalf("parquet: %v", err)
	}
}
