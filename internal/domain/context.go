package domain

import "context"

type operationIDKey struct{}

// ContextWithOperationID tags ctx with the id of the queued operation being replayed.
// Gateway adapters read it to set an idempotency key.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey{}, id)
}

// OperationIDFromContext returns the operation id set by ContextWithOperationID.
func OperationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operationIDKey{}).(string)
	return id, ok && id != ""
}
