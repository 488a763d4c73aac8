// Package accessflow provides per-identity admission control for Go HTTP services.
//
// Every request from an identity (usually the client IP) is counted for one
// interval. An identity that reaches max_requests inside that window gets a
// single rate-limited verdict and is then blocked for the life of the
// process. Exempt identities are never counted.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	af, err := accessflow.New(
//	    accessflow.WithDefaults(100, time.Minute, "127.0.0.1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	switch af.Evaluate("203.0.113.7") {
//	case core.Allow:
//	    // serve
//	case core.DenyRateLimited, core.DenyBlocked:
//	    // reject
//	}
//
// # HTTP Middleware
//
//	http.Handle("/api/", af.Middleware(yourHandler))
//
// Blocked identities get 403, the request that trips the limit gets 429.
// Requests whose identity cannot be extracted go to the error handler
// (WithErrorHandler), which answers 500 by default.
//
// # Configuration
//
// Load configuration from YAML file:
//
//	af, err := accessflow.New(
//	    accessflow.WithConfigFile("config.yaml"),
//	)
//
// Example YAML configuration:
//
//	rate_limiter:
//	  max_requests: 100
//	  interval: 1m
//	  exempt: ["127.0.0.1"]
//	  decay: decrement     # or reset
//	  idle_ttl: 1h
//	identity: ip           # forwarded, header:X-API-Key
//	token:
//	  secret: change-me
//	hash:
//	  secret: pepper
//	redis:
//	  addr: localhost:6379
//
// The token, hash, encrypt and redis sections are optional. Accessing a
// collaborator whose section is absent returns ErrNotConfigured.
//
// # Concurrency
//
// Evaluate is safe for concurrent use. Calls for one identity, and that
// identity's decay callbacks, are serialized by a per-identity lock;
// different identities never contend beyond a shard lookup.
package accessflow
