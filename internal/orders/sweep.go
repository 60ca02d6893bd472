package orders

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"main/internal/schema"
)

// SweepStuck scans all transient orders older than the configured
// threshold and raises one alert per strategy listing them. It is
// detection only; nothing is cancelled.
func (t *Table) SweepStuck(now time.Time) []schema.Alert {
	cutoff := now.Add(-t.cfg.StuckAge).UnixNano()
	stuck := make(map[schema.StrategyID][]string)
	for _, ref := range t.byID {
		o, ok := t.arena.Get(ref)
		if !ok || !o.State.IsTransient() {
			continue
		}
		if o.UpdatedTs > cutoff {
			continue
		}
		stuck[o.StrategyID] = append(stuck[o.StrategyID], o.ID.String())
	}
	if len(stuck) == 0 {
		return nil
	}

	strategies := make([]schema.StrategyID, 0, len(stuck))
	for strategyID := range stuck {
		strategies = append(strategies, strategyID)
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })

	alerts := make([]schema.Alert, 0, len(strategies))
	for _, strategyID := range strategies {
		ids := stuck[strategyID]
		sort.Strings(ids)
		alerts = append(alerts, schema.Alert{
			Type:       schema.AlertTypeStuckOrders,
			StrategyID: strategyID,
			Text:       fmt.Sprintf("stuck orders: %s", strings.Join(ids, ", ")),
		})
	}
	return alerts
}
