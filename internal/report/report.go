package report

import (
	"context"
	"fmt"

	"github.com/vnmchuo/llm-chargeback/internal/pricing"
	"github.com/vnmchuo/llm-chargeback/internal/usage"
)

// RecordWithCost is a usage record decorated with its chargeback,
// formatted to exactly two decimals for the dashboard.
type RecordWithCost struct {
	usage.Record
	TotalCost string `json:"totalCost"`
}

// Summary is one aggregation pass over the live records. TotalCost is
// the sum of the already-rounded per-record costs, not a re-rounding
// of the raw sum.
type Summary struct {
	Records   []RecordWithCost
	TotalCost string
}

// Reporter derives chargeback figures from the usage store. Cost is
// recomputed on every call so pricing changes take effect without
// touching the cache.
type Reporter struct {
	store usage.Store
}

func NewReporter(store usage.Store) *Reporter {
	return &Reporter{store: store}
}

// ListWithCost enumerates all live records and attaches costs. An
// empty store yields an empty record list and a total of "0.00".
func (r *Reporter) ListWithCost(ctx context.Context) (*Summary, error) {
	records, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}

	decorated := make([]RecordWithCost, 0, len(records))
	var total float64
	for _, rec := range records {
		cost := pricing.Cost(rec.DeploymentID, rec.PromptTokens, rec.CompletionTokens, rec.ImageTokens)
		total += cost
		decorated = append(decorated, RecordWithCost{
			Record:    *rec,
			TotalCost: pricing.FormatUSD(cost),
		})
	}

	return &Summary{
		Records:   decorated,
		TotalCost: pricing.FormatUSD(total),
	}, nil
}
