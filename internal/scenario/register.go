package scenario

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/client"
	"github.com/bnema/mxload/internal/domain"
)

const registerAttempts = 3

// registerDriver creates every account in its partition, one at a time.
// Transport failures get three attempts; a terminal RegistrationError gets
// none, that username is simply lost to the run.
type registerDriver struct {
	cfg Config
}

func (d *registerDriver) Name() string { return "register" }

func (d *registerDriver) Run(ctx context.Context, partition []domain.Credential) error {
	log := d.cfg.Log
	session := d.cfg.newSession()

	for _, cred := range partition {
		if ctx.Err() != nil {
			return nil
		}
		session.Load(cred)
		d.registerOne(ctx, session, cred.Username)
	}
	return park(ctx, log, d.Name())
}

func (d *registerDriver) registerOne(ctx context.Context, session *client.Session, username string) {
	log := d.cfg.Log
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		err := session.Register(ctx)
		if err == nil {
			return
		}

		var regErr *domain.RegistrationError
		if errors.As(err, &regErr) {
			log.Error("registration is terminal for user",
				zap.String("user", username), zap.Error(err))
			return
		}
		if errors.Is(err, domain.ErrMissingCredentials) {
			log.Error("roster entry unusable", zap.String("user", username), zap.Error(err))
			return
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("registration attempt failed",
			zap.String("user", username), zap.Int("attempt", attempt), zap.Error(err))
	}
	log.Error("registration attempts exhausted", zap.String("user", username))
}
