// Package redis provides helpers for connecting to a Redis server.
//
// Connect retries the connection with the supplied configuration so services
// survive a Redis that comes up slightly later than they do. Healthcheck
// returns a probe function for readiness endpoints.
//
// Configuration is described by the Config struct whose fields are populated
// from environment variables via github.com/caarlos0/env.
package redis
