package export

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"stakingengine/internal/domain"
)

// rewardParquetRow is the columnar schema for the warehouse reward archive,
// grounded on services/otc-gateway/recon/reconciler.go's parquetRow tagging
// convention.
type rewardParquetRow struct {
	ID           int64  `parquet:"name=id, type=INT64"`
	PoolID       int64  `parquet:"name=pool_id, type=INT64"`
	AccountID    int64  `parquet:"name=account_id, type=INT64"`
	Owner        string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	RewardCrypto string `parquet:"name=reward_crypto, type=BYTE_ARRAY, convertedtype=UTF8"`
	RewardAmount int64  `parquet:"name=reward_amount, type=INT64"`
	Day          string `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status       string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	PCTxID       string `parquet:"name=pc_tx_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt    string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// RewardsParquet writes the reward rows to a Snappy-compressed Parquet file
// at path, for ingestion by the operator's data warehouse.
func RewardsParquet(path string, rewards []*domain.Reward) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(rewardParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: reward parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rewards {
		if r == nil {
			continue
		}
		row := &rewardParquetRow{
			ID:           int64(r.ID),
			PoolID:       int64(r.PoolID),
			AccountID:    int64(r.AccountID),
			Owner:        r.Owner,
			RewardCrypto: r.RewardCrypto,
			RewardAmount: r.RewardAmount,
			Day:          r.Day,
			Status:       string(r.Status),
			PCTxID:       r.PCTxID,
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: reward parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: reward parquet flush: %w", err)
	}
	return file.Close()
}

// ledgerParquetRow is the columnar schema for the pool-ledger archive.
type ledgerParquetRow struct {
	Seq            int64  `parquet:"name=seq, type=INT64"`
	PoolID         int64  `parquet:"name=pool_id, type=INT64"`
	SignedAmount   int64  `parquet:"name=signed_amount, type=INT64"`
	RunningBalance int64  `parquet:"name=running_balance, type=INT64"`
	Kind           string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID      int64  `parquet:"name=account_id, type=INT64"`
	NeuronID       string `parquet:"name=neuron_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	BlockIndex     int64  `parquet:"name=block_index, type=INT64"`
	CreatedAt      string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// PoolLedgerParquet writes a pool's ledger rows to a Snappy-compressed
// Parquet file at path.
func PoolLedgerParquet(path string, entries []*domain.PoolLedgerEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(ledgerParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: ledger parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, e := range entries {
		if e == nil {
			continue
		}
		row := &ledgerParquetRow{
			Seq:            int64(e.Seq),
			PoolID:         int64(e.PoolID),
			SignedAmount:   e.SignedAmount,
			RunningBalance: e.RunningBalance,
			Kind:           string(e.Kind),
			AccountID:      int64(e.AccountID),
			NeuronID:       e.NeuronID,
			BlockIndex:     int64(e.BlockIndex),
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: ledger parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: ledger parquet flush: %w", err)
	}
	return file.Close()
}
