// Package tenant carries request-scoped identity through context: the tenant
// every operation is isolated to, the user acting, and correlation ids for
// event provenance.
package tenant

import "context"

type ContextKey string

var (
	TenantIDKey      = ContextKey("X-Tenant-Id")
	UserIDKey        = ContextKey("X-User-Id")
	RequestIDKey     = ContextKey("X-Request-Id")
	CorrelationIDKey = ContextKey("X-Correlation-Id")
)

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	value, ok := ctx.Value(TenantIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	value, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func GetCorrelationID(ctx context.Context) string {
	value, ok := ctx.Value(CorrelationIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
