package days

import (
	"fmt"
	"strings"
)

// FreshnessPolicy decides what a push with an older stamp than the stored one does.
type FreshnessPolicy string

const (
	// FreshnessTrust stores the client stamp verbatim; the last commit wins.
	FreshnessTrust FreshnessPolicy = "trust"
	// FreshnessReject refuses pushes whose stamp is older than the stored one.
	FreshnessReject FreshnessPolicy = "reject"
)

// ParseFreshnessPolicy maps configuration text onto a policy; empty means trust.
func ParseFreshnessPolicy(value string) (FreshnessPolicy, error) {
	switch FreshnessPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case FreshnessTrust, "":
		return FreshnessTrust, nil
	case FreshnessReject:
		return FreshnessReject, nil
	default:
		return "", fmt.Errorf("days: unknown freshness policy %q", value)
	}
}

type freshnessDecision struct {
	accepted  bool
	regressed bool
}

// decideFreshness compares the incoming stamp with the stored one, if any.
// Equal stamps never count as a regression so re-pushing a day is idempotent.
func decideFreshness(policy FreshnessPolicy, stored int64, hasStored bool, incoming UnixMillis) freshnessDecision {
	if !hasStored || incoming.Int64() >= stored {
		return freshnessDecision{accepted: true}
	}
	if policy == FreshnessReject {
		return freshnessDecision{accepted: false, regressed: true}
	}
	return freshnessDecision{accepted: true, regressed: true}
}
