package requestdata

import (
	"context"
)

type requestDataKey struct{}

// RequestData carries the authenticated tenant and actor for a request.
// Every store query derives its tenant predicate from here.
type RequestData struct {
	TenantID    string
	Actor       string
	TokenString string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey{})
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}
