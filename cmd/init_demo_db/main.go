package main

import (
	"context"
	"flag"
	"log"

	"sidewalkd/db"
)

// init_demo_db writes a self-contained SQLite database with the full schema
// and generated labels, routes and regions, ready for thinning and hitsim.
func main() {
	dbPath := flag.String("db", "sidewalk-demo.db", "Path to the SQLite database file")
	flag.Parse()

	if err := initDemo(context.Background(), *dbPath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	log.Printf("demo database initialized at %s", *dbPath)
}

func initDemo(ctx context.Context, path string) error {
	gdb, err := db.Open(db.Options{Driver: db.DriverSQLite, DSN: path})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Printf("warning: failed to close database: %v", err)
		}
	}()
	return db.Bootstrap(ctx, gdb, "", true)
}
