// Package usage meters per-user consumption of AI services against
// tier-based monthly quotas.
package usage

import (
	"math"

	"github.com/talkscene/talkscene/internal/user"
)

// Metric identifies one metered operation class.
type Metric string

const (
	// MetricConversation counts dialogue turns evaluated by the LLM.
	MetricConversation Metric = "conversation"
	// MetricImage counts character portrait generations.
	MetricImage Metric = "image"
	// MetricTTS counts speech synthesis calls.
	MetricTTS Metric = "tts"
)

// IsValid reports whether m is a recognised metric.
func (m Metric) IsValid() bool {
	switch m {
	case MetricConversation, MetricImage, MetricTTS:
		return true
	}
	return false
}

// Unlimited is the limit reported for accounts that bypass metering.
const Unlimited = math.MaxInt32

// limits is the per-tier monthly quota table.
var limits = map[user.Tier]map[Metric]int{
	user.TierFree:    {MetricConversation: 10, MetricImage: 3, MetricTTS: 30},
	user.TierStarter: {MetricConversation: 50, MetricImage: 10, MetricTTS: 150},
	user.TierPro:     {MetricConversation: 200, MetricImage: 40, MetricTTS: 600},
	user.TierPremium: {MetricConversation: 1000, MetricImage: 200, MetricTTS: 3000},
}

// Limit returns the monthly quota for a tier and metric. Unknown tiers get
// the free-tier quota.
func Limit(tier user.Tier, metric Metric) int {
	t, ok := limits[tier]
	if !ok {
		t = limits[user.TierFree]
	}
	return t[metric]
}
