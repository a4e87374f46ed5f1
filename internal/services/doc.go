// Package services talks to the external scraping provider and turns its answers into raw payloads.
//
// # Provider protocol
//
// Every fetch starts an actor run, polls the run until it leaves RUNNING/READY, then pages the
// run's dataset. [ApifyClient] implements the HTTP side with a bearer token from [oauth2] and a
// [gobreaker.CircuitBreaker] around each request. [ApifyProvider] maps platforms to actors and
// actor inputs.
//
// # Fetcher
//
// [Fetcher] is what the executor uses. It acquires a rate limiter token before every provider
// call and exposes posts as a lazy, single-use sequence.
//
// # Error Handling
//
// Provider failures are classified into three kinds carried by [shared.TaskError]:
//   - [shared.KindTransient] : timeouts, 5xx, connection resets, failed runs, open breaker
//   - [shared.KindQuotaExceeded] : 429 or 402 (usage limit)
//   - [shared.KindPermanent] : 400/401/403/404, malformed credentials, account not found
//
// Raw response bodies are kept on [ProviderError] for logs and never reach task status.
package services
