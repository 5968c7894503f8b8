package commands

import (
	"fmt"
	"net/http"

	"cchat/internal/api"
	"cchat/internal/apperr"
	"cchat/internal/config"
	"cchat/internal/logger"
	"cchat/internal/notice"
	"cchat/internal/session"
	"cchat/internal/upload"

	"github.com/spf13/cobra"
)

// clientEnv is what every client command needs: the persisted session and
// a REST client authenticating with it.
type clientEnv struct {
	cfg      *config.Config
	store    session.Store
	sess     *session.Session
	api      *api.Client
	uploader upload.Uploader
	catalog  *notice.Catalog
}

func openClient(cmd *cobra.Command) (*clientEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := session.OpenPebble(cfg.Session.Dir)
	if err != nil {
		return nil, err
	}
	sess, err := session.Init(store, logger.L)
	if err != nil {
		store.Close()
		return nil, err
	}

	client, err := api.New(cfg.API.BaseURL, sess,
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithUser(sess),
		api.WithLogger(logger.L))
	if err != nil {
		store.Close()
		return nil, err
	}

	uploader, err := cfg.Uploader()
	if err != nil {
		store.Close()
		return nil, err
	}

	return &clientEnv{
		cfg:      cfg,
		store:    store,
		sess:     sess,
		api:      client,
		uploader: uploader,
		catalog:  notice.New(cfg.Locale.Lang),
	}, nil
}

func (e *clientEnv) Close() error { return e.store.Close() }

// requireSession fails unless a credential is stored.
func (e *clientEnv) requireSession() error {
	if !e.sess.Authenticated() {
		return fmt.Errorf("not signed in, run \"cchat login\" first")
	}
	return nil
}

// explain turns err into the user-facing notice text.
func (e *clientEnv) explain(err error, fallback string) error {
	if err == nil {
		return nil
	}
	logger.L.Debug("command failed", "error", err)
	return fmt.Errorf("%s", e.catalog.ForError(err, fallback).Text)
}

func expired(err error) bool { return apperr.KindOf(err) == apperr.KindAuthExpired }
