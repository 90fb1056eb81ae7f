package coordinator

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/history"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

// historyFetchLimit bounds each category read from the store before
// reduction.
const historyFetchLimit = 500

// jobDetails is the subset of a job payload surfaced in history.
type jobDetails struct {
	Ref             string `json:"ref"`
	ClientAddress   string `json:"clientAddress"`
	ProviderAddress string `json:"providerAddress"`
	Price           string `json:"price"`
	Deliverable     string `json:"deliverable"`
}

func decodeDetails(payload []byte) jobDetails {
	var d jobDetails
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &d)
	}
	return d
}

// keyed collects one history category with the marketplace id and the
// store sequence of each item.
type keyed[T any] struct {
	items []T
	ids   []string
	seqs  []int64
}

func (k *keyed[T]) add(item T, id string, seq int64) {
	k.items = append(k.items, item)
	k.ids = append(k.ids, id)
	k.seqs = append(k.seqs, seq)
}

// resolve assigns the retention keys. A category orders by marketplace id
// only when every id in it is numeric, otherwise by store sequence, so the
// two spaces never mix.
func (k *keyed[T]) resolve(set func(*T, int64)) []T {
	keys := make([]int64, len(k.ids))
	for i, id := range k.ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			keys = k.seqs
			break
		}
		keys[i] = n
	}
	for i := range k.items {
		set(&k.items[i], keys[i])
	}
	return k.items
}

func setEntryID(e *history.JobEntry, id int64) { e.JobID = id }
func setItemID(it *history.InventoryItem, id int64) { it.JobID = id }

func toEntry(id, phase string, payload []byte) history.JobEntry {
	d := decodeDetails(payload)
	return history.JobEntry{
		Ref:             firstNonEmpty(d.Ref, id),
		Phase:           phase,
		ClientAddress:   d.ClientAddress,
		ProviderAddress: d.ProviderAddress,
		Price:           d.Price,
		Deliverable:     d.Deliverable,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// History builds a snapshot from live jobs and persisted outcomes, then
// bounds it with the configured retention.
func (c *Coordinator) History(ctx context.Context) (history.Snapshot, error) {
	var (
		active, completed, cancelled keyed[history.JobEntry]
		produced, acquired           keyed[history.InventoryItem]
	)

	for _, e := range c.activeEntries() {
		active.add(toEntry(e.job.ID, e.job.Phase, e.job.Payload), e.job.ID, e.seq)
	}

	if store := c.config.Store; store != nil {
		outcomes, err := store.ListOutcomes(ctx, "", historyFetchLimit)
		if err != nil {
			return history.Snapshot{}, err
		}
		slices.Reverse(outcomes)
		for _, o := range outcomes {
			e := toEntry(o.JobID, o.Phase, o.Payload)
			switch o.Status {
			case core.OutcomeCompleted:
				completed.add(e, o.JobID, o.Seq)
				produced.add(history.InventoryItem{
					Type:            o.Phase,
					Value:           firstNonEmpty(e.Deliverable, o.JobID),
					ClientAddress:   e.ClientAddress,
					ProviderAddress: e.ProviderAddress,
				}, o.JobID, o.Seq)
			case core.OutcomeFailed, core.OutcomeExpired:
				e.Deliverable = string(o.Status)
				cancelled.add(e, o.JobID, o.Seq)
			}
		}

		payments, err := store.ListPayments(ctx, historyFetchLimit)
		if err != nil {
			return history.Snapshot{}, err
		}
		slices.Reverse(payments)
		for _, p := range payments {
			acquired.add(paymentItem(p), p.JobID, int64(p.BlockNumber))
		}
	}

	var s history.Snapshot
	s.Jobs.Active.AsSeller = active.resolve(setEntryID)
	s.Jobs.Completed = completed.resolve(setEntryID)
	s.Jobs.Cancelled = cancelled.resolve(setEntryID)
	s.Inventory.Produced = produced.resolve(setItemID)
	s.Inventory.Acquired = acquired.resolve(setItemID)
	return history.Reduce(s, c.historyConfig()), nil
}

func paymentItem(p storage.PaymentRecord) history.InventoryItem {
	return history.InventoryItem{
		Type:            "payment",
		Value:           p.Amount,
		ClientAddress:   p.FromAddress,
		ProviderAddress: p.ToAddress,
	}
}

func (c *Coordinator) historyConfig() history.Config {
	cfg := c.config.History
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return cfg
}
