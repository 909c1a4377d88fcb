package session

import (
	"context"
	"errors"

	"github.com/sendnode/wagateway/pkg/logger"
)

// RestoreSessions restarts every session with stored credentials. Individual
// failures are logged and skipped so one broken session cannot block the
// rest of the fleet from coming back.
func (m *Manager) RestoreSessions(ctx context.Context) int {
	ids, err := m.store.Credentials().List(ctx)
	if err != nil {
		logger.ErrorCF("session", "Credential listing failed, nothing restored", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}

	restored := 0
	for _, id := range ids {
		ownerID, err := m.store.Credentials().Owner(ctx, id)
		if err != nil {
			logger.WarnCF("session", "Skipping restore, no owner mapping", map[string]interface{}{
				"session": id,
			})
			continue
		}

		name := ""
		if record, err := m.store.Sessions().Get(ctx, id); err == nil {
			name = record.Name
		}

		if _, err := m.StartSession(ctx, id, ownerID, name); err != nil {
			if errors.Is(err, ErrSessionExists) {
				continue
			}
			logger.ErrorCF("session", "Session restore failed", map[string]interface{}{
				"session": id,
				"error":   err.Error(),
			})
			continue
		}
		restored++
	}

	if restored > 0 {
		logger.InfoCF("session", "Restored sessions", map[string]interface{}{
			"count": restored,
		})
	}
	return restored
}
