package history

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
)

// DefaultKeep is the retention count used when a category's count is not
// positive.
const DefaultKeep = 5

// JobEntry is one job as seen by a marketplace agent.
type JobEntry struct {
	JobID           int64  `json:"jobId"`
	Ref             string `json:"ref,omitempty"`
	Phase           string `json:"phase"`
	ClientAddress   string `json:"clientAddress"`
	ProviderAddress string `json:"providerAddress"`
	Price           string `json:"price,omitempty"`
	Deliverable     string `json:"deliverable,omitempty"`
}

// InventoryItem is a deliverable acquired or produced by a job.
type InventoryItem struct {
	JobID           int64  `json:"jobId"`
	Type            string `json:"type"`
	Value           string `json:"value"`
	ClientAddress   string `json:"clientAddress,omitempty"`
	ProviderAddress string `json:"providerAddress,omitempty"`
}

// Active holds jobs still in progress, split by the agent's role.
type Active struct {
	AsBuyer  []JobEntry `json:"asBuyer"`
	AsSeller []JobEntry `json:"asSeller"`
}

// Jobs groups active and historical jobs.
type Jobs struct {
	Active    Active     `json:"active"`
	Completed []JobEntry `json:"completed"`
	Cancelled []JobEntry `json:"cancelled"`
}

// Inventory groups historical deliverables.
type Inventory struct {
	Acquired []InventoryItem `json:"acquired"`
	Produced []InventoryItem `json:"produced"`
}

// Snapshot is the state handed to downstream consumers.
type Snapshot struct {
	Jobs      Jobs      `json:"jobs"`
	Inventory Inventory `json:"inventory"`
}

// Config controls Reduce.
type Config struct {
	KeepCompletedJobs      int
	KeepCancelledJobs      int
	KeepAcquiredInventory  int
	KeepProducedInventory  int
	JobIDsToIgnore         []int64
	AgentAddressesToIgnore []string
	Logger                 *slog.Logger
}

// Reduce returns a bounded copy of s.
func Reduce(s Snapshot, cfg Config) Snapshot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ignoredIDs := make(map[int64]struct{}, len(cfg.JobIDsToIgnore))
	for _, id := range cfg.JobIDsToIgnore {
		ignoredIDs[id] = struct{}{}
	}
	ignoredAddrs := make(map[string]struct{}, len(cfg.AgentAddressesToIgnore))
	for _, addr := range cfg.AgentAddressesToIgnore {
		ignoredAddrs[strings.ToLower(addr)] = struct{}{}
	}
	keepActive := func(e JobEntry) bool {
		if _, ok := ignoredIDs[e.JobID]; ok {
			return false
		}
		if _, ok := ignoredAddrs[strings.ToLower(e.ClientAddress)]; ok {
			return false
		}
		_, ok := ignoredAddrs[strings.ToLower(e.ProviderAddress)]
		return !ok
	}

	var out Snapshot
	out.Jobs.Active.AsBuyer = filter(s.Jobs.Active.AsBuyer, keepActive)
	out.Jobs.Active.AsSeller = filter(s.Jobs.Active.AsSeller, keepActive)

	jobID := func(e JobEntry) int64 { return e.JobID }
	itemID := func(i InventoryItem) int64 { return i.JobID }
	out.Jobs.Completed = truncate(logger, "completed", s.Jobs.Completed, cfg.KeepCompletedJobs, jobID)
	out.Jobs.Cancelled = truncate(logger, "cancelled", s.Jobs.Cancelled, cfg.KeepCancelledJobs, jobID)
	out.Inventory.Acquired = truncate(logger, "acquired", s.Inventory.Acquired, cfg.KeepAcquiredInventory, itemID)
	out.Inventory.Produced = truncate(logger, "produced", s.Inventory.Produced, cfg.KeepProducedInventory, itemID)
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	if in == nil {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// truncate keeps the keep entries with the highest ids, preserving their
// input order.
func truncate[T any](logger *slog.Logger, category string, in []T, keep int, id func(T) int64) []T {
	if keep <= 0 {
		keep = DefaultKeep
	}
	if len(in) <= keep {
		return slices.Clone(in)
	}

	idx := make([]int, len(in))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return id(in[idx[a]]) > id(in[idx[b]])
	})
	kept := idx[:keep]
	sort.Ints(kept)

	out := make([]T, 0, keep)
	for _, i := range kept {
		out = append(out, in[i])
	}

	logger.Info("history truncated", "category", category, "dropped", len(in)-keep, "retained", keep)
	return out
}
