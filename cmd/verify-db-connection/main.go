package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/lib/pq"

	"lending-gateway/internal/config"
)

// column is a varchar column whose width must hold the values written to it
type column struct {
	table, name string
	minSize     int64
}

var requiredColumns = []column{
	{"lending_operations", "requester", 42},
	{"lending_operations", "sender", 128},
	{"lending_operations", "caller", 128},
	{"lending_operations", "asset_token", 42},
	{"lending_operations", "asset_amount", 78}, // decimal uint256
	{"lending_operations", "shards_key", 78},
	{"auth_nonces", "address", 42},
}

func main() {
	fmt.Println("🔍 Verifying database connection and column sizes...")
	fmt.Println(strings.Repeat("=", 60))

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn (or DATABASE_DSN) is not set")
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	failed := 0
	for _, col := range requiredColumns {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, col.table, col.name).Scan(&size)

		if msg, ok := evaluate(col, size, err); ok {
			fmt.Printf("✅ %s\n", msg)
		} else {
			failed++
			fmt.Printf("❌ %s\n", msg)
		}
	}

	if failed > 0 {
		log.Fatalf("%d column(s) need attention; start the gateway once to run migrations", failed)
	}
	fmt.Println("\n✅ Journal schema looks good")
}

func evaluate(col column, size sql.NullInt64, err error) (string, bool) {
	name := col.table + "." + col.name
	switch {
	case err == sql.ErrNoRows:
		return name + " does not exist", false
	case err != nil:
		return fmt.Sprintf("%s: query failed: %v", name, err), false
	case !size.Valid:
		// text columns have no maximum length
		return name + " is unbounded", true
	case size.Int64 < col.minSize:
		return fmt.Sprintf("%s is VARCHAR(%d), need at least %d", name, size.Int64, col.minSize), false
	}
	return fmt.Sprintf("%s is VARCHAR(%d)", name, size.Int64), true
}
