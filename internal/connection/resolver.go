// Package connection decides which endpoint of a media server to talk to.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/plex"
)

// ErrUnreachable is returned by Fastest when no endpoint answered.
var ErrUnreachable = errors.New("no endpoint of the server answered")

// ServerStore is the part of the catalog the resolver needs.
type ServerStore interface {
	GetServer(ctx context.Context, id string) (*catalog.Server, error)
	SetLastKnownURI(ctx context.Context, serverID, uri string) error
}

// Prober checks whether an endpoint answers.
type Prober interface {
	Identity(ctx context.Context, baseURL, token string) (*plex.Identity, error)
}

// Endpoints is the ordered list of base URIs for a server plus the token
// every request to it must carry.
type Endpoints struct {
	Token string
	URIs  []string
}

// Resolver orders candidate endpoints and remembers the ones that work.
type Resolver struct {
	store  ServerStore
	prober Prober
	logger *zap.Logger
}

func NewResolver(store ServerStore, prober Prober, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:  store,
		prober: prober,
		logger: logger.With(zap.String("component", "connection")),
	}
}

// Resolve returns the candidate endpoints of a server: last known first,
// then local, remote and relay connections in registration order.
func (r *Resolver) Resolve(ctx context.Context, serverID string) (Endpoints, error) {
	srv, err := r.store.GetServer(ctx, serverID)
	if err != nil {
		return Endpoints{}, fmt.Errorf("resolve server %s: %w", serverID, err)
	}
	return Endpoints{Token: srv.AccessToken, URIs: Candidates(srv)}, nil
}

// Remember records uri as the last endpoint that answered.
func (r *Resolver) Remember(ctx context.Context, serverID, uri string) error {
	uri = strings.TrimRight(uri, "/")
	if err := r.store.SetLastKnownURI(ctx, serverID, uri); err != nil {
		return err
	}
	r.logger.Info("endpoint remembered", zap.String("server", serverID), zap.String("uri", uri))
	return nil
}

// Fastest probes every candidate concurrently and returns the first to
// answer. The winner is remembered.
func (r *Resolver) Fastest(ctx context.Context, serverID string) (string, error) {
	eps, err := r.Resolve(ctx, serverID)
	if err != nil {
		return "", err
	}
	if len(eps.URIs) == 0 {
		return "", fmt.Errorf("server %s: %w", serverID, ErrUnreachable)
	}

	ctx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	winner := make(chan string, 1)
	g, gctx := errgroup.WithContext(ctx)
	for _, uri := range eps.URIs {
		g.Go(func() error {
			if _, err := r.prober.Identity(gctx, uri, eps.Token); err != nil {
				r.logger.Debug("probe failed", zap.String("uri", uri), zap.Error(err))
				return nil
			}
			select {
			case winner <- uri:
				cancel()
			default:
			}
			return nil
		})
	}
	_ = g.Wait()

	select {
	case uri := <-winner:
		if err := r.Remember(context.WithoutCancel(ctx), serverID, uri); err != nil {
			r.logger.Warn("could not remember endpoint", zap.String("uri", uri), zap.Error(err))
		}
		return uri, nil
	default:
		return "", fmt.Errorf("server %s: %w", serverID, ErrUnreachable)
	}
}

// Candidates orders and de-duplicates the endpoints of srv.
func Candidates(srv *catalog.Server) []string {
	var local, remote, relay []string
	for _, c := range srv.Connections {
		switch {
		case c.Relay:
			relay = append(relay, c.URI)
		case c.Local:
			local = append(local, c.URI)
		default:
			remote = append(remote, c.URI)
		}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(uris ...string) {
		for _, u := range uris {
			u = strings.TrimRight(strings.TrimSpace(u), "/")
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	add(srv.LastKnownURI)
	add(local...)
	add(remote...)
	add(relay...)
	return out
}

// Authorize attaches the server token to req.
func Authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set(plex.TokenHeader, token)
	}
}
