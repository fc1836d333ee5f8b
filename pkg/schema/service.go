package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Source fetches entity type schemas. A nil result means no schema is
// registered for the key.
type Source interface {
	GetByKey(ctx context.Context, tenantID, key string) (*EntityType, error)
}

// Registry caches compiled validators per tenant, type, and schema version.
// Construct once and inject; Reload drops the cache when schemas change.
type Registry struct {
	source Source
	logger *zap.Logger
	cache  sync.Map // tenantID:key:version -> *Validator
}

// NewRegistry creates a schema registry.
func NewRegistry(source Source, logger *zap.Logger) *Registry {
	return &Registry{
		source: source,
		logger: logger,
	}
}

// ValidateProperties validates a property bag against the tenant's schema for
// the entity type. Types without a registered schema validate permissively.
// The entity type key is normalized before lookup so "Source Page" and
// "source_page" resolve to the same schema.
func (r *Registry) ValidateProperties(ctx context.Context, tenantID, entityType string, properties map[string]any) (ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.Registry.ValidateProperties")
	defer span.End()

	key, err := normalize.Identifier(entityType)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("invalid entity type key %q: %w", entityType, err)
	}

	et, err := r.source.GetByKey(ctx, tenantID, key)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to get entity type schema: %w", err)
	}
	if et == nil {
		return ValidationResult{Valid: true}, nil
	}

	validator, err := r.getValidator(tenantID, key, et.Version, et.Schema)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to compile schema: %w", err)
	}

	result := validator.Validate(properties)
	if !result.Valid {
		r.logger.Debug("Property validation failed",
			zap.String("tenant_id", tenantID),
			zap.String("entity_type", key),
			zap.Int("errors", len(result.Errors)))
	}

	return result, nil
}

// FingerprintExclusions returns the fingerprint exclusion paths for an entity
// type, or nil when the type has no schema or no exclusions.
func (r *Registry) FingerprintExclusions(ctx context.Context, tenantID, entityType string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.Registry.FingerprintExclusions")
	defer span.End()

	key, err := normalize.Identifier(entityType)
	if err != nil {
		return nil, fmt.Errorf("invalid entity type key %q: %w", entityType, err)
	}

	et, err := r.source.GetByKey(ctx, tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity type schema: %w", err)
	}
	if et == nil {
		return nil, nil
	}

	var parsed EntityTypeSchema
	if err := json.Unmarshal(et.Schema, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse entity type schema: %w", err)
	}

	return parsed.GetFingerprintExclusions(), nil
}

// Reload drops every cached validator for a tenant's entity type. Passing an
// empty key drops the whole tenant.
func (r *Registry) Reload(tenantID, entityType string) {
	prefix := tenantID + ":"
	if entityType != "" {
		if key, err := normalize.Identifier(entityType); err == nil {
			prefix = tenantID + ":" + key + ":"
		}
	}
	r.cache.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			r.cache.Delete(key)
		}
		return true
	})
}

func (r *Registry) getValidator(tenantID, key string, version int, schemaJSON json.RawMessage) (*Validator, error) {
	cacheKey := fmt.Sprintf("%s:%s:%d", tenantID, key, version)

	if cached, ok := r.cache.Load(cacheKey); ok {
		return cached.(*Validator), nil
	}

	validator, err := NewValidator(schemaJSON)
	if err != nil {
		return nil, err
	}

	r.cache.Store(cacheKey, validator)
	return validator, nil
}
