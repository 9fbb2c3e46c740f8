package lookup

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

// StaticRegistrationLookup resolves registration numbers from an in-memory
// table keyed by "last-name|YYYY-MM-DD". It stands in for the external
// professional register in development and tests.
type StaticRegistrationLookup struct {
	entries map[string]string
	logger  *zap.Logger
}

// NewStaticRegistrationLookup constructs a lookup over the provided entries.
func NewStaticRegistrationLookup(entries map[string]string, log *zap.Logger) *StaticRegistrationLookup {
	if log == nil {
		log = zap.NewNop()
	}
	normalized := make(map[string]string, len(entries))
	for key, number := range entries {
		normalized[strings.ToLower(key)] = number
	}
	return &StaticRegistrationLookup{entries: normalized, logger: log}
}

// FindRegistrationNumber resolves a number for the query or reports
// repository.ErrNotFound.
func (l *StaticRegistrationLookup) FindRegistrationNumber(_ context.Context, query port.RegistrationLookupQuery) (string, error) {
	key := strings.ToLower(strings.TrimSpace(query.LastName))
	if query.DateOfBirth != nil {
		key += "|" + query.DateOfBirth.Format("2006-01-02")
	}

	number, ok := l.entries[key]
	if !ok {
		l.logger.Debug("registration number not found", zap.String("key", key))
		return "", repository.ErrNotFound
	}
	return number, nil
}

var _ port.RegistrationLookup = (*StaticRegistrationLookup)(nil)
