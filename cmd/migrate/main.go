package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"storefront/internal/database"
)

func main() {
	cfg, err := database.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("failed to connect database: ", err)
	}
	defer pool.Close()

	applied, err := database.Migrate(ctx, pool)
	if err != nil {
		log.Fatal("migrations failed: ", err)
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
	}

	var now time.Time
	if err := pool.QueryRow(ctx, "SELECT NOW()").Scan(&now); err != nil {
		log.Fatal("query failed: ", err)
	}
	fmt.Println("Current database time:", now)
}
