// Package pg bootstraps the PostgreSQL layer: connection pooling with retry
// via pgx/v5, schema migrations via goose/v3, a readiness probe, and error
// helpers for the usual constraint violations.
//
// Config fields are populated from environment variables via
// github.com/caarlos0/env. Connect retries with linear backoff until the
// database is reachable; Migrate routes goose output through the application
// logger and guarantees the schema is current before the service starts
// serving traffic.
package pg
