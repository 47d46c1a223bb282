// Package domain contains the core domain entities and value objects for tillsync.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only the queue model and its rules.
//
// # Entities
//
//   - [QueuedOperation]: A persisted, replayable unit of deferred work
//   - [SyncTask]: The closed set of work shapes ([RegularSale], [ResumeHeld])
//   - [SalePayload]: Immutable snapshot of a sale captured at checkout
//   - [SaleRecord]: The remote service's acknowledgement of a committed sale
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (payloads are snapshots, never re-derived)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
