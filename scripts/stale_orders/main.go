package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"crypto-exchange-bot/internal/utils"

	_ "github.com/lib/pq"
)

// Prints processing orders older than -older-than, oldest first.
//
//	DATABASE_URL=postgres://... go run ./scripts/stale_orders -older-than 2h
func main() {
	olderThan := flag.Duration("older-than", 2*time.Hour, "report orders processing for longer than this")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	rows, err := db.Query(`
		SELECT o.id, o.user_id, COALESCE(u.username, ''), o.action, o.asset,
		       o.settlement_total, o.created_at
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.status = 'processing' AND o.created_at < $1
		ORDER BY o.created_at ASC
	`, time.Now().Add(-*olderThan))
	if err != nil {
		log.Fatal("Failed to query orders:", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        uint
			userID    int64
			username  string
			action    string
			asset     string
			total     string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &userID, &username, &action, &asset, &total, &createdAt); err != nil {
			log.Fatal("Failed to read row:", err)
		}
		if username != "" {
			username = "@" + username
		}
		fmt.Printf("#%-7d %-5s %-5s %14s RUB  user %d %s  waiting %s\n",
			utils.OrderNumber(id), action, asset, total, userID, username, time.Since(createdAt).Truncate(time.Minute))
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatal("Failed to read orders:", err)
	}

	fmt.Printf("⏰ %d stale processing order(s)\n", count)
}
