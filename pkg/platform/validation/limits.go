package validation

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024

	// MaxBulkBodySize fits a bulk run naming MaxBulkCandidates subject ids
	// (about 40 bytes each once quoted) plus the reason (512 KB).
	MaxBulkBodySize = 512 * 1024
)

// Field and collection limits
const (
	// MaxRequestDetailsLength bounds free-text request details, which carry
	// rectification diffs.
	MaxRequestDetailsLength = 16 * 1024

	// MaxBulkCandidates bounds one bulk anonymization run.
	MaxBulkCandidates = 10000

	// DefaultPageSize and MaxPageSize bound audit log pages.
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ClampPageSize applies the default and maximum to a requested page size.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
