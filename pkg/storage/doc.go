// Package storage provides utilities shared across storage adapter
// implementations: sentinel errors, tenant context helpers, and the
// optimistic-concurrency update protocol used by record mutations.
//
// Storage adapters (memory, postgres) implement the store interfaces
// defined by their consumers (pkg/records, pkg/auth). This package
// contains only shared types and helpers, not those interfaces.
package storage
