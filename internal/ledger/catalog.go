package ledger

import "github.com/pixelmint/pixelmint/internal/models"

// DefaultSeedPlans is the catalog materialized on first run. Plan ids are
// stable because historical transactions reference them.
func DefaultSeedPlans() []models.Plan {
	return []models.Plan{
		{
			ID:          "plan_1",
			Name:        "Starter Pack",
			Credits:     100,
			PriceINR:    99,
			Description: "Perfect for getting started.",
			IsActive:    true,
		},
		{
			ID:          "plan_2",
			Name:        "Pro Pack",
			Credits:     300,
			PriceINR:    249,
			Description: "For frequent creators.",
			IsActive:    true,
		},
		{
			ID:          "plan_3",
			Name:        "Ultra Pack",
			Credits:     1000,
			PriceINR:    699,
			Description: "Best value for power users.",
			IsActive:    true,
		},
	}
}
