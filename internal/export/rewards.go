// Package export implements the operator/backup tooling's CSV, JSONL, and
// Parquet writers for reward and pool-ledger history, grounded on
// integrations/exports/rewards_csv.go and rewards_jsonl.go.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"stakingengine/internal/domain"
)

// RewardsCSV builds a CSV export for the supplied reward rows and returns
// the serialised data alongside a SHA-256 checksum of the payload.
func RewardsCSV(rewards []*domain.Reward) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "pool_id", "account_id", "owner", "reward_crypto", "reward_amount", "day", "status", "pc_tx_id", "created_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, r := range rewards {
		if r == nil {
			continue
		}
		record := []string{
			fmt.Sprintf("%d", r.ID),
			fmt.Sprintf("%d", r.PoolID),
			fmt.Sprintf("%d", r.AccountID),
			r.Owner,
			r.RewardCrypto,
			fmt.Sprintf("%d", r.RewardAmount),
			r.Day,
			string(r.Status),
			r.PCTxID,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// RewardsJSONL builds a JSON Lines export for the supplied reward rows and
// returns the serialised payload alongside a checksum.
func RewardsJSONL(rewards []*domain.Reward) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, r := range rewards {
		if r == nil {
			continue
		}
		payload := map[string]any{
			"id":            r.ID,
			"pool_id":       r.PoolID,
			"account_id":    r.AccountID,
			"owner":         r.Owner,
			"reward_crypto": r.RewardCrypto,
			"reward_amount": r.RewardAmount,
			"day":           r.Day,
			"status":        r.Status,
			"pc_tx_id":      r.PCTxID,
			"created_at":    r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
