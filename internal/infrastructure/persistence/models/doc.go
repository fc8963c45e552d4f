// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Amounts are stored as NUMERIC(78,0) through the Amount column type so that
// 256-bit token balances and the 1e18-scaled growth index survive a round trip
// without precision loss.
//
// Structure:
//   - base.go: base persistence models (BaseModel, ClientAggregateModel)
//   - amount.go: arbitrary precision integer column type
//   - ledger.go: vault ledger, share account, snapshot, distribution and fee config models
package models
