package ledger

import "github.com/pixelmint/pixelmint/internal/models"

// ActivePlans returns purchasable plans in catalog order.
func (b *Book) ActivePlans() []models.Plan {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Plan
	for _, p := range b.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// Plans returns the whole catalog, inactive plans included, so historical
// transactions stay resolvable.
func (b *Book) Plans() []models.Plan {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Plan, len(b.plans))
	copy(out, b.plans)
	return out
}

// PlanByID resolves any plan, active or not.
func (b *Book) PlanByID(planID string) (models.Plan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.planByIDLocked(planID); ok {
		return p, nil
	}
	return models.Plan{}, ErrPlanNotFound
}

func (b *Book) planByIDLocked(planID string) (models.Plan, bool) {
	for _, p := range b.plans {
		if p.ID == planID {
			return p, true
		}
	}
	return models.Plan{}, false
}
