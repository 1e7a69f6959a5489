package tenancy

import "github.com/pavitra93/edu-tenancy/shared/models"

const gib = int64(1024 * 1024 * 1024)

// tierLimits is shared by organization creation and tier changes
var tierLimits = map[models.OrganizationTier]models.OrganizationSettings{
	models.TierFree: {
		MaxUsers:             50,
		MaxDocuments:         10,
		MaxQuestionsPerMonth: 1000,
		MaxStorageBytes:      1 * gib,
		EvaluationsEnabled:   false,
	},
	models.TierBasic: {
		MaxUsers:             100,
		MaxDocuments:         50,
		MaxQuestionsPerMonth: 5000,
		MaxStorageBytes:      5 * gib,
		EvaluationsEnabled:   true,
	},
	models.TierPremium: {
		MaxUsers:             500,
		MaxDocuments:         100,
		MaxQuestionsPerMonth: 10000,
		MaxStorageBytes:      10 * gib,
		EvaluationsEnabled:   true,
	},
	models.TierEnterprise: {
		MaxUsers:             1000,
		MaxDocuments:         1000,
		MaxQuestionsPerMonth: 100000,
		MaxStorageBytes:      100 * gib,
		EvaluationsEnabled:   true,
	},
}

// LimitsForTier returns the default settings of a tier. Unknown tiers get the
// free limits.
func LimitsForTier(tier models.OrganizationTier) models.OrganizationSettings {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[models.TierFree]
}

// ApplyTier overwrites the limit fields of s with the tier defaults, keeping
// identity and timestamps.
func ApplyTier(s *models.OrganizationSettings, tier models.OrganizationTier) {
	limits := LimitsForTier(tier)
	s.MaxUsers = limits.MaxUsers
	s.MaxDocuments = limits.MaxDocuments
	s.MaxQuestionsPerMonth = limits.MaxQuestionsPerMonth
	s.MaxStorageBytes = limits.MaxStorageBytes
	s.EvaluationsEnabled = limits.EvaluationsEnabled
}
