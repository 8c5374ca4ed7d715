package licensing

import (
	"strings"
	"time"

	"github.com/mindsetalert/backoffice/app/models"
)

const day = 24 * time.Hour

// NormalizePlan maps checkout metadata onto a license plan. An empty value is a monthly
// purchase; community-only memberships and unknown values are rejected.
func NormalizePlan(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "monthly", "month":
		return models.LicensePlanMonthly, true
	case "yearly", "year", "annual":
		return models.LicensePlanYearly, true
	case "bundle", "discord_mindset":
		return models.LicensePlanBundle, true
	default:
		return "", false
	}
}

// PlanPeriod is the entitlement bought by one payment.
func PlanPeriod(plan string) time.Duration {
	if plan == models.LicensePlanYearly {
		return 365 * day
	}
	return 30 * day
}

// grantsCommunityRole reports whether the plan includes the community membership.
func grantsCommunityRole(plan string) bool {
	return plan == models.LicensePlanBundle
}
