package domain

import "time"

// PoolStatus enumerates the lifecycle states a staking pool can occupy.
type PoolStatus string

// Pool status values, following the Created/Open/Closed/Finished/Cancelled
// machine described for staking pools.
const (
	PoolCreated   PoolStatus = "Created"
	PoolOpen      PoolStatus = "Open"
	PoolClosed    PoolStatus = "Closed"
	PoolFinished  PoolStatus = "Finished"
	PoolCancelled PoolStatus = "Cancelled"
)

// Valid reports whether the status is one of the known pool states.
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolCreated, PoolOpen, PoolClosed, PoolFinished, PoolCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the pool may move from s to next.
func (s PoolStatus) CanTransition(next PoolStatus) bool {
	switch s {
	case PoolCreated:
		return next == PoolOpen || next == PoolCancelled
	case PoolCancelled:
		return next == PoolCreated
	case PoolOpen:
		return next == PoolClosed
	case PoolClosed:
		return next == PoolOpen || next == PoolFinished
	default:
		return false
	}
}

// LimitConfig bounds the amount a single user may commit to a pool.
type LimitConfig struct {
	MinPerUser int64
	MaxPerUser int64
	Step       int64
}

// TermConfig bounds the lock-up term accepted by a pool.
type TermConfig struct {
	MinTermDays          int64
	MaxTermDays          int64
	MinEarlyUnstakeDays  int64
}

// RewardConfig describes one daily-rate reward schedule offered by a pool.
// A pool may carry several, selected by the term length at stake time.
type RewardConfig struct {
	AnnualRateBps int64
	DailyRate     int64 // E8S fraction: reward = floor(staked * DailyRate / 1e8)
	RewardCrypto  string
	MinDays       int64
	MaxDays       int64
}

// Match reports whether the reward config applies to the given term length.
func (r RewardConfig) Match(days int64) bool {
	return days >= r.MinDays && days <= r.MaxDays
}

// Pool is the staking pool aggregate: capacity accounting, status machine,
// and the configuration that governs stakes placed into it.
type Pool struct {
	ID                uint64
	Address           string
	Crypto            string
	PoolSize          int64
	StakedAmount      int64
	LockedSize        int64
	StakerCount       int64
	NNSNeuronOccupied int64
	NeuronID          string
	JackpotOccupied   int64
	Status            PoolStatus
	ClientVisible     bool
	Limit             LimitConfig
	Term              TermConfig
	RewardConfigs     []RewardConfig
	OpenTime          time.Time
	CloseTime         time.Time
	EndTime           time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedBy         string
	UpdatedAt         time.Time
}

// AvailableFunds reports the staked amount not already committed to the
// governance neuron or the jackpot reserve.
func (p *Pool) AvailableFunds() int64 {
	return p.StakedAmount - p.NNSNeuronOccupied - p.JackpotOccupied
}

// HasCapacity reports whether amount can be reserved without breaching the
// pool_size invariant.
func (p *Pool) HasCapacity(amount int64) bool {
	return p.PoolSize-p.StakedAmount-p.LockedSize >= amount
}

// RewardConfigFor returns the first reward config whose term window covers
// days, or false if none match.
func (p *Pool) RewardConfigFor(days int64) (RewardConfig, bool) {
	for _, rc := range p.RewardConfigs {
		if rc.Match(days) {
			return rc, true
		}
	}
	return RewardConfig{}, false
}

// Clone returns a deep copy so callers may mutate without aliasing store
// state held by other goroutines.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.RewardConfigs = append([]RewardConfig(nil), p.RewardConfigs...)
	return &clone
}
