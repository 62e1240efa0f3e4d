// Package gate decides, per connecting session, whether the subscription tier
// permits a live push channel at all. Below-threshold tiers never dial; they
// operate in periodic-refresh mode against the REST surface.
package gate

// Tier is the restaurant's purchased plan level.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// liveThreshold is the lowest tier that gets a live channel.
const liveThreshold = TierStandard

func (t Tier) rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierStandard:
		return 2
	case TierPremium:
		return 3
	}
	return 0
}

func (t Tier) Valid() bool {
	return t.rank() > 0
}

// Allowed reports whether the tier is entitled to a live channel. Evaluated at
// connection time and on explicit re-authentication only, never mid-session.
func Allowed(t Tier) bool {
	return t.rank() >= liveThreshold.rank()
}
