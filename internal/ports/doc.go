// Package ports defines the interfaces that connect the tillsync application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [QueueStore]: durable, ordered storage of queued operations
//   - [Gateway]: submission of sales to the remote service
//   - [Connectivity]: point-in-time online/offline reading
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters under internal/adapters implement them with the file system,
// sqlite, HTTP and prometheus.
package ports
