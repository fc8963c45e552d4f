package persistence

import (
	"strings"

	"github.com/yieldvault/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// MaxPageSize caps list queries regardless of the requested page size
const MaxPageSize = 200

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// VaultSortFields contains allowed sort fields for vault ledgers
var VaultSortFields = map[string]bool{
	"created_at":        true,
	"updated_at":        true,
	"chain":             true,
	"environment":       true,
	"last_index_update": true,
	"apy_7d":            true,
	"apy_30d":           true,
}

// ShareAccountSortFields contains allowed sort fields for share accounts
var ShareAccountSortFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"end_user_id": true,
}

// DistributionSortFields contains allowed sort fields for revenue distributions
var DistributionSortFields = map[string]bool{
	"distributed_at": true,
}

// applyPagination orders by a whitelisted column and applies offset and limit.
// Client supplied column names never reach the SQL text unchecked.
func applyPagination(query *gorm.DB, filter shared.Filter, allowed map[string]bool, defaultField string) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	query = query.Order(field + " " + ValidateSortOrder(filter.OrderDir))

	size := filter.PageSize
	if size <= 0 {
		size = shared.DefaultFilter().PageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return query.Offset(shared.Filter{Page: filter.Page, PageSize: size}.Offset()).Limit(size)
}
