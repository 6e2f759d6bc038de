package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

func fieldDetail(name string) map[string]any {
	return map[string]any{"field": name}
}

// ParseQueryInt reads an optional bounded integer query parameter.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").WithDetails(fieldDetail(key))
	}
	if value < min || value > max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between %d and %d", key, min, max).
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryUUID reads a required uuid query parameter.
func ParseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" is required").WithDetails(fieldDetail(key))
	}
	return parseUUID(raw, key)
}

// ParseURLUUID parses a uuid path parameter.
func ParseURLUUID(raw, name string) (uuid.UUID, error) {
	return parseUUID(strings.TrimSpace(raw), name)
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" must be a valid uuid").WithDetails(fieldDetail(name))
	}
	return id, nil
}
