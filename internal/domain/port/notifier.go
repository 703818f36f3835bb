package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, email, sourceKey, effectID, errorMsg string) error
}
