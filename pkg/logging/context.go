package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey        contextKey = "trace_id"
	NotificationIDKey contextKey = "notification_id"
	SubscriptionIDKey contextKey = "subscription_id"
	ServiceNameKey    contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithNotificationID(ctx context.Context, notificationID string) context.Context {
	return context.WithValue(ctx, NotificationIDKey, notificationID)
}

func WithSubscriptionID(ctx context.Context, subscriptionID string) context.Context {
	return context.WithValue(ctx, SubscriptionIDKey, subscriptionID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func GetNotificationID(ctx context.Context) string {
	return getString(ctx, NotificationIDKey)
}

func GetSubscriptionID(ctx context.Context) string {
	return getString(ctx, SubscriptionIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields returns the key/value pairs stored in ctx, ready to be
// prepended to a structured log call.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, string(TraceIDKey), traceID)
	}

	if notificationID := GetNotificationID(ctx); notificationID != "" {
		fields = append(fields, string(NotificationIDKey), notificationID)
	}

	if subscriptionID := GetSubscriptionID(ctx); subscriptionID != "" {
		fields = append(fields, string(SubscriptionIDKey), subscriptionID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
