// Command stakingctl is the operator CLI for the staking engine: it opens
// the entity store directly (no running daemon required) and exports
// reward, event, and pool-ledger history for warehouse ingestion or
// incident review, following cmd/nhbctl's flag-driven subcommand dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stakingengine/internal/domain"
	"stakingengine/internal/export"
	"stakingengine/internal/store"
)

const (
	exportRewardsCommand    = "export-rewards"
	exportEventsCommand     = "export-events"
	exportPoolLedgerCommand = "export-pool-ledger"

	defaultDatabasePath = "staking-entities.sqlite"
	defaultIndexPath    = "staking-index"

	pageSize = 500
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case exportRewardsCommand:
		err = runExportRewards(os.Args[2:])
	case exportEventsCommand:
		err = runExportEvents(os.Args[2:])
	case exportPoolLedgerCommand:
		err = runExportPoolLedger(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: stakingctl <%s|%s|%s> [flags]\n", exportRewardsCommand, exportEventsCommand, exportPoolLedgerCommand)
}

func runExportRewards(args []string) error {
	fs := flag.NewFlagSet(exportRewardsCommand, flag.ExitOnError)
	poolID := fs.Uint64("pool", 0, "Pool id to export rewards for")
	format := fs.String("format", "csv", "Output format: csv, jsonl, or parquet")
	out := fs.String("out", "rewards.out", "Output file path")
	dbPath := fs.String("db", defaultDatabasePath, "Path to the entity store")
	indexPath := fs.String("index", defaultIndexPath, "Path to the ordered-index store")
	fs.Parse(args)

	if *poolID == 0 {
		return fmt.Errorf("-pool is required")
	}
	s, err := store.Open(*dbPath, *indexPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	rows, err := collectRewards(ctx, s, *poolID)
	if err != nil {
		return err
	}

	switch *format {
	case "csv":
		data, checksum, err := export.RewardsCSV(rows)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	case "jsonl":
		data, checksum, err := export.RewardsJSONL(rows)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	case "parquet":
		if err := export.RewardsParquet(*out, rows); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *out)
		return nil
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func runExportEvents(args []string) error {
	fs := flag.NewFlagSet(exportEventsCommand, flag.ExitOnError)
	format := fs.String("format", "csv", "Output format: csv or jsonl")
	out := fs.String("out", "events.out", "Output file path")
	dbPath := fs.String("db", defaultDatabasePath, "Path to the entity store")
	indexPath := fs.String("index", defaultIndexPath, "Path to the ordered-index store")
	fs.Parse(args)

	s, err := store.Open(*dbPath, *indexPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	events, err := collectEvents(ctx, s)
	if err != nil {
		return err
	}

	switch *format {
	case "csv":
		data, checksum, err := export.EventsCSV(events)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	case "jsonl":
		data, checksum, err := export.EventsJSONL(events)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func runExportPoolLedger(args []string) error {
	fs := flag.NewFlagSet(exportPoolLedgerCommand, flag.ExitOnError)
	poolID := fs.Uint64("pool", 0, "Pool id to export the ledger for")
	format := fs.String("format", "csv", "Output format: csv, jsonl, or parquet")
	out := fs.String("out", "pool-ledger.out", "Output file path")
	dbPath := fs.String("db", defaultDatabasePath, "Path to the entity store")
	indexPath := fs.String("index", defaultIndexPath, "Path to the ordered-index store")
	fs.Parse(args)

	if *poolID == 0 {
		return fmt.Errorf("-pool is required")
	}
	s, err := store.Open(*dbPath, *indexPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	entries, err := collectPoolLedger(ctx, s, *poolID)
	if err != nil {
		return err
	}

	switch *format {
	case "csv":
		data, checksum, err := export.PoolLedgerCSV(entries)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	case "jsonl":
		data, checksum, err := export.PoolLedgerJSONL(entries)
		if err != nil {
			return err
		}
		fmt.Printf("checksum: %s\n", checksum)
		return os.WriteFile(*out, data, 0o644)
	case "parquet":
		if err := export.PoolLedgerParquet(*out, entries); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *out)
		return nil
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func collectRewards(ctx context.Context, s store.Store, poolID uint64) ([]*domain.Reward, error) {
	var all []*domain.Reward
	offset := 0
	for {
		page := store.PageRequest{Offset: offset, Limit: pageSize}
		batch, err := s.ListRewardsByPool(ctx, poolID, page)
		if err != nil {
			return nil, fmt.Errorf("list rewards: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

func collectEvents(ctx context.Context, s store.Store) ([]*domain.Event, error) {
	var all []*domain.Event
	offset := 0
	for {
		page := store.PageRequest{Offset: offset, Limit: pageSize}
		batch, err := s.ListEvents(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

func collectPoolLedger(ctx context.Context, s store.Store, poolID uint64) ([]*domain.PoolLedgerEntry, error) {
	var all []*domain.PoolLedgerEntry
	offset := 0
	for {
		page := store.PageRequest{Offset: offset, Limit: pageSize}
		batch, err := s.ListPoolLedger(ctx, poolID, page)
		if err != nil {
			return nil, fmt.Errorf("list pool ledger: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}
