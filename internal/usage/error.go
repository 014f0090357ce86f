package usage

import "fmt"

// QuotaError reports a denied metered operation. Handlers translate it to a
// 429 response carrying the counter details.
type QuotaError struct {
	Metric Metric
	Quota  Quota
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("usage: %s quota exceeded (%d/%d)", e.Metric, e.Quota.Current, e.Quota.Limit)
}
