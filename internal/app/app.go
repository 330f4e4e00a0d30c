// Package app is the dependency-injection container spec.md §9 calls
// for in place of process-wide singletons: one App is built per process
// (or per test, with fakes), holding every handle request handlers need
// instead of reaching for package-level globals.
package app

import (
	"net/http"
	"strconv"

	"github.com/kiro-gateway/kiro-gateway/internal/accounts"
	"github.com/kiro-gateway/kiro-gateway/internal/config"
	"github.com/kiro-gateway/kiro-gateway/internal/httpapi"
	"github.com/kiro-gateway/kiro-gateway/internal/kiroauth"
	"github.com/kiro-gateway/kiro-gateway/internal/proxy"
	"github.com/kiro-gateway/kiro-gateway/internal/upstream"
)

// App holds every handle the gateway's request path depends on.
type App struct {
	Config       *config.Config
	Accounts     *accounts.Store
	Tokens       *kiroauth.Refresher
	Upstream     *upstream.Client
	Orchestrator *proxy.Orchestrator
	Server       *httpapi.Server
}

// New assembles an App from cfg. Tests construct their own App by hand
// with fake accounts/tokens/upstream handles instead of calling this.
func New(cfg *config.Config) (*App, error) {
	accountStore := accounts.New()
	accountStore.LoadStatic(cfg.StaticAccountTable())

	tokenStore := kiroauth.NewStore(cfg.Server.DataDir)
	tokens := kiroauth.NewRefresher(tokenStore, &http.Client{})

	upstreamClient := upstream.New(cfg.Upstream.BaseURL)

	orchestrator := proxy.New(accountStore, tokens, upstreamClient, cfg.ModelMapper())

	server, err := httpapi.New(orchestrator, cfg.Admin)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:       cfg,
		Accounts:     accountStore,
		Tokens:       tokens,
		Upstream:     upstreamClient,
		Orchestrator: orchestrator,
		Server:       server,
	}, nil
}

// Addr returns the host:port the server should bind.
func (a *App) Addr() string {
	port := a.Config.Server.Port
	if port <= 0 {
		port = 8080
	}
	return a.Config.Server.Host + ":" + strconv.Itoa(port)
}
