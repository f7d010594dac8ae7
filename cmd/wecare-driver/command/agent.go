package command

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"wecare/internal/client"
	"wecare/internal/infra"
	"wecare/internal/modules/jobs"
	"wecare/internal/modules/syncq"
	"wecare/internal/types"
)

// agent is one driver's wired job list.
type agent struct {
	driverID types.ID
	queue    *syncq.Queue
	ctrl     *jobs.Controller
	rdb      *redis.Client
}

func newAgent(ctx context.Context, g *globals, extra ...jobs.Option) (*agent, error) {
	s := g.cfg.Sync
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	a := &agent{driverID: types.ID(s.DriverID)}

	var (
		store syncq.Store
		cache jobs.Cache
	)
	switch s.Store {
	case "memory":
		g.log.Warn("using in-memory queue; pending changes are lost on exit")
		store = syncq.NewMemoryStore()
		cache = jobs.NewMemoryCache()
	default:
		r := g.cfg.Redis
		if r.Addr == "" {
			return nil, fmt.Errorf("redis.addr is required when sync.store is redis")
		}
		a.rdb, err = infra.NewRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		store = syncq.NewRedisStore(a.rdb, syncq.QueueKey(a.driverID))
		cache = jobs.NewRedisCache(a.rdb, jobs.SnapshotKey(a.driverID))
	}

	a.queue, err = syncq.Open(ctx, store, g.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	backend := client.NewHTTPBackend(s.BackendURL, s.Token, s.RequestTimeout)
	opts := append([]jobs.Option{
		jobs.WithCache(cache),
		jobs.WithClock(types.NewSystemClock(loc)),
		jobs.WithPollInterval(s.PollInterval),
		jobs.WithDrainInterval(s.DrainInterval),
		jobs.WithRequestTimeout(s.RequestTimeout),
	}, extra...)
	a.ctrl, err = jobs.NewController(a.driverID, backend, a.queue, g.log, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *agent) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// notifierURL is sync.ws_url, or the backend's /ws/drivers/<id> endpoint.
func notifierURL(wsURL, backendURL string, driverID types.ID) (string, error) {
	if wsURL != "" {
		return wsURL, nil
	}
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", fmt.Errorf("invalid sync.backend_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid sync.backend_url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/drivers/" + url.PathEscape(string(driverID))
	return u.String(), nil
}
