// Package lock implements the storage engine for named, time-bounded advisory
// locks. A lock is identified by a Key (namespace + business id) and held
// through an opaque token minted on acquisition. Two interchangeable Store
// implementations are provided: InMemory for single-process deployments and
// Redis for deployments that share a lock space across processes.
package lock
