package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo"
	"github.com/terrycain/backblaze-b2-storage/pkg/metrics"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage"
	"github.com/terrycain/backblaze-b2-storage/pkg/utils/logging"
	"github.com/terrycain/backblaze-b2-storage/pkg/web"
)

// Globals are the flags shared by every command.
type Globals struct {
	SessionSecret string
}

type ServeCmd struct {
	Config           string `env:"CONFIG" type:"existingfile" help:"YAML options file e.g. /etc/b2/options.yaml"`
	ApplicationKeyID string `env:"B2_APPLICATION_KEY_ID" help:"Overrides applicationKeyId from the options file"`
	ApplicationKey   string `env:"B2_APPLICATION_KEY" help:"Overrides applicationKey from the options file"`

	ListenAddress        string `env:"LISTEN_ADDR" default:"0.0.0.0:8080" help:"Listen address e.g. 0.0.0.0:8080"`
	MetricsListenAddress string `env:"METRICS_LISTEN_ADDR" default:"0.0.0.0:9102" help:"Listen address for prometheus metrics e.g. 0.0.0.0:9102"`
	ProxyBaseURL         string `env:"PROXY_BASE_URL" help:"Public URL of this server, used when building proxy URLs"`
	LoginURL             string `env:"LOGIN_URL" help:"Where anonymous users are sent to log in e.g. /accounts/login/"`
	JWKSURL              string `env:"JWKS_URL" help:"JWKS endpoint of an identity provider whose tokens are accepted"`
}

type TokenCmd struct {
	User  string        `arg:"" help:"User id to put in the token"`
	Staff bool          `help:"Grant access to staff files"`
	TTL   time.Duration `default:"24h" help:"How long the token is valid for"`
}

var cli struct {
	LogLevel      string `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	LogPretty     bool   `env:"LOG_PRETTY" help:"Human readable logs instead of JSON"`
	SessionSecret string `env:"SESSION_SECRET" help:"HMAC secret for session tokens"`

	Serve ServeCmd `cmd:"" help:"Serve the B2 proxy views"`
	Token TokenCmd `cmd:"" help:"Mint a session token"`
}

func (cmd *ServeCmd) options() (storage.Options, error) {
	opts := storage.DefaultOptions()
	if cmd.Config != "" {
		var err error
		if opts, err = storage.LoadOptions(cmd.Config); err != nil {
			return opts, err
		}
	}
	if cmd.ApplicationKeyID != "" {
		opts.ApplicationKeyID = cmd.ApplicationKeyID
	}
	if cmd.ApplicationKey != "" {
		opts.ApplicationKey = cmd.ApplicationKey
	}
	if cmd.ProxyBaseURL != "" {
		opts.ProxyBaseURL = cmd.ProxyBaseURL
	}
	return opts, opts.Validate()
}

func (cmd *ServeCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cmd.options()
	if err != nil {
		return err
	}

	store, err := accountinfo.GetStore(opts.AccountInfo.Type, opts.AccountInfo.Connection())
	if err != nil {
		return fmt.Errorf("failed to initiate account info store: %w", err)
	}
	defer store.Close()

	var jwks *web.JWKS
	if cmd.JWKSURL != "" {
		jwks = web.NewJWKS(ctx, cmd.JWKSURL)
	}
	if globals.SessionSecret == "" && jwks == nil {
		log.Warn().Msg("No SESSION_SECRET or JWKS_URL set, only public files can be served")
	}

	handlers := &web.Handlers{
		Storages: make(map[storage.Tier]web.FileStorage),
		Auth:     web.NewSessionAuth(globals.SessionSecret, jwks),
		LoginURL: cmd.LoginURL,
	}
	for _, tier := range storage.Tiers {
		// Authorization happens on the first request so the server starts while B2 is unreachable
		st, err2 := storage.New(ctx, opts, tier, store, storage.WithLazyAuthorization())
		if err2 != nil {
			return fmt.Errorf("failed to initiate %s storage: %w", tier, err2)
		}
		handlers.Storages[tier] = st
	}

	go metrics.Server(ctx, cmd.MetricsListenAddress)

	srv := &http.Server{
		Addr:              cmd.ListenAddress,
		Handler:           web.GetRouter(handlers, true),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Listening on %s", cmd.ListenAddress)
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed HTTP server loop: %w", err)
	}
	log.Info().Msg("Shut down")
	return nil
}

func (cmd *TokenCmd) Run(globals *Globals) error {
	token, err := web.NewSessionAuth(globals.SessionSecret, nil).Issue(web.User{ID: cmd.User, Staff: cmd.Staff}, cmd.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func main() {
	ctx := kong.Parse(&cli)

	logging.SetupLogging(cli.LogLevel, cli.LogPretty)

	if err := ctx.Run(&Globals{SessionSecret: cli.SessionSecret}); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
