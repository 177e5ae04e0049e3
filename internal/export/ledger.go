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

// PoolLedgerCSV builds a CSV export of a pool's append-only ledger.
func PoolLedgerCSV(entries []*domain.PoolLedgerEntry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"seq", "pool_id", "signed_amount", "running_balance", "kind", "account_id", "neuron_id", "block_index", "created_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		record := []string{
			fmt.Sprintf("%d", e.Seq),
			fmt.Sprintf("%d", e.PoolID),
			fmt.Sprintf("%d", e.SignedAmount),
			fmt.Sprintf("%d", e.RunningBalance),
			string(e.Kind),
			fmt.Sprintf("%d", e.AccountID),
			e.NeuronID,
			fmt.Sprintf("%d", e.BlockIndex),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
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

// PoolLedgerJSONL builds a JSON Lines export of a pool's ledger.
func PoolLedgerJSONL(entries []*domain.PoolLedgerEntry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, e := range entries {
		if e == nil {
			continue
		}
		payload := map[string]any{
			"seq":             e.Seq,
			"pool_id":         e.PoolID,
			"signed_amount":   e.SignedAmount,
			"running_balance": e.RunningBalance,
			"kind":            e.Kind,
			"account_id":      e.AccountID,
			"neuron_id":       e.NeuronID,
			"block_index":     e.BlockIndex,
			"created_at":      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
