package utils

import (
	"context"

	"github.com/nicolaschoi7042/itNswinventory-sub002/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyScheduleId    = appctx.ContextKeyScheduleId
	ContextKeyTriggeredBy   = appctx.ContextKeyTriggeredBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetScheduleIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyScheduleId)
}

func SetScheduleIdInContext(ctx context.Context, scheduleId int) context.Context {
	return appctx.Set(ctx, ContextKeyScheduleId, scheduleId)
}

func GetTriggeredByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTriggeredBy)
}

func SetTriggeredByInContext(ctx context.Context, trigger string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggeredBy, trigger)
}
