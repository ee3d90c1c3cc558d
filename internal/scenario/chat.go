package scenario

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bnema/mxload/internal/client"
	"github.com/bnema/mxload/internal/domain"
)

// chatDriver is the load generator proper: one session per credential, each
// running a background sync task and a foreground scheduler until the run
// deadline. Session starts are rate limited so thousands of logins do not
// land on the homeserver at once.
type chatDriver struct {
	cfg Config
}

func (d *chatDriver) Name() string { return "chat" }

func (d *chatDriver) Run(ctx context.Context, partition []domain.Credential) error {
	log := d.cfg.Log

	clients := len(partition)
	if d.cfg.MaxClients > 0 && d.cfg.MaxClients < clients {
		clients = d.cfg.MaxClients
		log.Info("partition larger than client cap",
			zap.Int("partition", len(partition)), zap.Int("clients", clients))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if d.cfg.SpawnRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.cfg.SpawnRate), 1)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < clients; i++ {
		cred := partition[i]
		seed := d.cfg.Seed + int64(i)
		g.Go(func() error {
			if err := limiter.Wait(groupCtx); err != nil {
				return nil
			}
			d.runOne(groupCtx, cred, seed)
			return nil
		})
	}
	return g.Wait()
}

// runOne drives one virtual client for the rest of the run. A login
// failure leaves the slot idle: one bad user never aborts the run.
func (d *chatDriver) runOne(ctx context.Context, cred domain.Credential, seed int64) {
	log := d.cfg.Log
	session := d.cfg.newSession()
	session.Load(cred)

	if !session.Credential().Authenticated() {
		if err := session.Login(ctx); err != nil {
			log.Error("login failed, slot stays idle",
				zap.String("user", cred.Username), zap.Error(err))
			<-ctx.Done()
			return
		}
	}

	session.StartSync(ctx)
	defer func() {
		session.StopSync()
		// The final update carries the cursor the run ended on.
		session.EmitTokenUpdate()
	}()

	sched := client.NewScheduler(log, session, d.cfg.Profile, seed)
	sched.Run(ctx)
}
