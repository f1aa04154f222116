package storage

// Tier selects the bucket and the access check used for a file.
type Tier int

const (
	// TierNone is plain storage, URLs point straight at B2 (or the CDN).
	TierNone Tier = iota
	TierPublic
	TierLoggedIn
	TierStaff
)

var Tiers = []Tier{TierPublic, TierLoggedIn, TierStaff}

// Prefix is the proxy route prefix for the tier.
func (t Tier) Prefix() string {
	switch t {
	case TierPublic:
		return "b2"
	case TierLoggedIn:
		return "b2l"
	case TierStaff:
		return "b2s"
	}
	return ""
}

// String matches the specificBucketNames option keys.
func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierLoggedIn:
		return "loggedIn"
	case TierStaff:
		return "staff"
	}
	return "none"
}

func (t Tier) Proxied() bool {
	return t != TierNone
}
