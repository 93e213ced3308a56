// Command govdata-ingest runs the government data ingestion pipeline.
//
// Subcommands:
//   - run: one foreground pass over the registry, printing the run report.
//   - serve: the operator HTTP API plus a dispatcher executing queued runs.
//   - sources: the configured source registry.
//   - migrate: pending schema migrations for SQL stores.
//
// Configuration comes from an optional --config file, a .env file and
// INGEST_* environment variables (INGEST_STORE_DRIVER, INGEST_STORE_DSN,
// INGEST_FETCH_ENGINE, INGEST_ARCHIVE_BACKEND, ...).
package main

import "github.com/JakeFAU/govdata-ingest/cmd"

func main() {
	cmd.Execute()
}
