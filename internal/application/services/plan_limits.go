package services

import (
	"context"
	"math"
)

// StaticPlanLimits gives every tenant the same quota. A zero field means unlimited.
type StaticPlanLimits struct {
	Tables int
	Rows   int
}

func (l StaticPlanLimits) MaxTables(_ context.Context, _ string) (int, error) {
	return orUnlimited(l.Tables), nil
}

func (l StaticPlanLimits) MaxRows(_ context.Context, _ string) (int, error) {
	return orUnlimited(l.Rows), nil
}

func orUnlimited(n int) int {
	if n <= 0 {
		return math.MaxInt
	}
	return n
}
