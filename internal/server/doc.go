// Package server exposes the sync engine over HTTP.
//
// # Routes
//
//	POST   /users/{id}/sync   request a sync; body {"platforms": [...]} is optional
//	GET    /users/{id}/tasks  list a user's tasks, newest first (?limit=N)
//	GET    /tasks/{id}        task status
//	DELETE /tasks/{id}        revoke a task
//	GET    /health            dependency probes and provider circuit state
//	GET    /metrics           Prometheus exposition
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [ChiRouter] implements
// it on chi. [Middleware] wraps handlers in reverse order (last added runs innermost).
//
// Error bodies carry only the coarse error kind and a client-safe message. Provider response
// bodies and internal causes are logged, never returned.
package server
