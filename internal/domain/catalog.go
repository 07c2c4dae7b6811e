package domain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Catalog looks up visual-band magnitudes of astronomical objects.
type Catalog interface {
	// VMagnitude returns the V magnitude of the named object. found is false
	// when the catalog does not know the object or has no V flux for it.
	VMagnitude(ctx context.Context, name string) (mag float64, found bool, err error)
}

// errNotFound is logged when the catalog answers but has no V magnitude.
var errNotFound = errors.New("object not found or has no V magnitude")

// DefaultTranslations maps local target shorthand to SIMBAD identifiers.
var DefaultTranslations = map[string]string{
	"PSIPHE":     "psi Phe",
	"MUCAS":      "mu Cas",
	"KS18C14487": "TYC 8856-529-1",
	"BD093070":   "BD-09 3070",
}

// SearchKey derives the catalog identifier for a report target name: the
// part before the first underscore, mapped through translations if present.
func SearchKey(name string, translations map[string]string) string {
	key := name
	if i := strings.IndexByte(key, '_'); i >= 0 {
		key = key[:i]
	}
	if t, ok := translations[key]; ok {
		return t
	}
	return key
}

// ResolveMagnitude looks up the V magnitude for a report target. Any
// failure (nil catalog, request error, unknown object) is logged and yields
// an unresolved magnitude; the lookup is not retried.
func ResolveMagnitude(ctx context.Context, name string, catalog Catalog, translations map[string]string, logger *slog.Logger) Magnitude {
	if catalog == nil {
		return UnresolvedMagnitude()
	}

	key := SearchKey(name, translations)
	logger.Debug("catalog lookup", "target", name, "search_key", key)

	mag, found, err := catalog.VMagnitude(ctx, key)
	if err != nil {
		logger.Warn("catalog query failed",
			"target", name,
			"search_key", key,
			"error", err,
		)
		return UnresolvedMagnitude()
	}
	if !found {
		logger.Warn("catalog query failed",
			"target", name,
			"search_key", key,
			"error", errNotFound,
		)
		return UnresolvedMagnitude()
	}
	return ResolvedMagnitude(mag)
}
