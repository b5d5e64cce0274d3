// Package repository provides data access interfaces and implementations
// for the MeStory recommendation service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL
// implementations following the repository pattern to abstract data
// persistence from the recommendation engine.
//
// # Repository Interfaces
//
//   - BookRepository: read access to the book catalog and trending queries
//   - ProfileRepository: versioned activity-profile persistence
//   - EventRepository: append-only interaction event log
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple
// goroutines. The underlying pgxpool handles connection pooling and
// synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package,
// wrapping database errors with fmt.Errorf and the %w verb:
//
//   - domain.ErrNotFound: resource does not exist
//   - domain.ErrVersionConflict: optimistic-lock write lost the race
//   - domain.ErrInvalidInput: invalid parameters provided
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass a transaction from database.DB.WithTransaction for atomic
// operations.
package repository

import (
	"github.com/mestory/recommendation-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Repository constructors accept DBTX so the same implementation
// serves direct pool access and transactional access:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    txRepo := repository.NewPgProfileRepository(tx)
//	    return txRepo.Save(ctx, profile)
//	})
type DBTX = database.DBTX

// List query defaults and limits.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// clampLimit normalizes a caller-supplied limit for list queries.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
