package notifier

import (
	"context"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
)

// Sink surfaces failures and informational notices to the user.
// Implementations must not call back into the store.
type Sink interface {
	Notify(ctx context.Context, n notification.Notification)
}
