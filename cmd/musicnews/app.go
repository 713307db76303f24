package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/syncpower/musicnews"
	"github.com/syncpower/musicnews/aggregator"
	"github.com/syncpower/musicnews/auth"
	"github.com/syncpower/musicnews/catalog"
	"github.com/syncpower/musicnews/config"
	"github.com/syncpower/musicnews/extractor"
	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/sources"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	http       *httpclient.RestyClient
	catalog    *catalog.Client
	extractor  *extractor.Extractor
	loader     sources.Loader
	store      *sources.PageStore
	aggregator *aggregator.Aggregator
	tokens     *auth.TokenService
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	client := httpclient.NewRestyClient(cfg.HTTP.ParseTimeout(), cfg.HTTP.UserAgent)
	feeds := sources.NewFeedExpander(cfg.HTTP.UserAgent, log)

	a := &app{
		cfg:       cfg,
		log:       log,
		http:      client,
		catalog:   catalog.NewClient(client, cfg.Catalog.Client(), log),
		extractor: extractor.New(client, cfg.Pages.Selectors, log),
		tokens:    auth.NewTokenService(client, cfg.Auth.Service(), log),
	}

	opts := aggregator.Options{
		TTL:    cfg.Cache.ParseTTL(),
		Logger: log,
	}

	switch cfg.Pages.Source {
	case config.PageSourceSQLite:
		store, err := sources.NewPageStore(cfg.Pages.Database, feeds, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open page store: %w", err)
		}
		a.store = store
		a.loader = store
		opts.Recorder = store
	case config.PageSourceFile, "":
		a.loader = sources.NewFileLoader(cfg.Pages.File, feeds, log)
	default:
		return nil, fmt.Errorf("unknown page source %q", cfg.Pages.Source)
	}

	a.aggregator = aggregator.New(a.catalog, a.loader, a.extractor, opts)
	return a, nil
}

// services returns the collaborators of the HTTP API.
func (a *app) services() musicnews.Services {
	svc := musicnews.Services{
		Columns:    a.aggregator,
		Latest:     a.catalog,
		LatestSize: a.cfg.Catalog.LatestSize,
		Pages:      a.loader,
		Extractor:  a.extractor,
		Tokens:     a.tokens,
		Images:     a.http,
	}
	if a.store != nil && a.cfg.Server.EnableMetaAPI {
		svc.PageAPI = sources.NewPageAPIServer(a.store)
	}
	return svc
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
