package repository

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

type dashboardRepo struct {
	db DB
}

func NewDashboardRepository(db DB) DashboardRepository {
	return &dashboardRepo{db: db}
}

// Stats counts products, users and orders. Revenue excludes cancelled orders.
func (r *dashboardRepo) Stats(ctx context.Context) (*models.DashboardStats, error) {
	sql := `SELECT
		(SELECT COUNT(*) FROM products),
		(SELECT COUNT(*) FROM profiles),
		(SELECT COUNT(*) FROM orders),
		(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status <> 'cancelled')
	`

	var stats models.DashboardStats
	err := r.db.QueryRow(ctx, sql).Scan(&stats.Products, &stats.Users, &stats.Orders, &stats.Revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}

	return &stats, nil
}
