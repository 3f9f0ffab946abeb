package service

import (
	"go.uber.org/fx"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

var (
	Module = fx.Options(
		fx.Provide(
			NewSnapshots,
			func(s *Snapshots) hub.Loader { return s },
			NewResources,
			NewOnboarding,
			NewAuth,
			NewTransfer,
		),
		fx.Invoke(CloseSubscriptionsOnSignOut),
	)
)

// CloseSubscriptionsOnSignOut ends a user's live streams once they sign out.
func CloseSubscriptionsOnSignOut(auth *Auth, h *hub.Hub) {
	auth.OnSessionChange(func(userID uint64, sess *models.Session) {
		if sess == nil {
			h.CloseUser(userID)
		}
	})
}
