package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/client"
	"github.com/example/weekwise/internal/clientcache"
)

// App is bound into every command's Run method.
type App struct {
	ctx      context.Context
	cli      *CLI
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time

	api   *client.Client
	cache *clientcache.Cache
}

// session lazily connects to the API and opens the week cache.
func (a *App) session() (*client.Client, *clientcache.Cache, error) {
	if a.cache != nil {
		return a.api, a.cache, nil
	}

	token, err := resolveToken(a.cli.Token, a.cli.Server)
	if err != nil {
		return nil, nil, err
	}

	api, err := client.New(a.cli.Server, token, client.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, nil, err
	}

	cache, err := clientcache.New(api,
		clientcache.WithClock(a.now),
		clientcache.WithLocation(a.location),
	)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Debug("session opened", "server", a.cli.Server)
	a.api, a.cache = api, cache
	return api, cache, nil
}

func (a *App) today() calendar.Date {
	return calendar.Today(a.now(), a.location)
}

// Close releases the week cache.
func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}
