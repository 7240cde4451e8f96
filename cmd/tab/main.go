package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/tab"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type options struct {
	envFile    string
	configFile string
	addr       string
	tabs       int
	seed       bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("Tab host stopped")
	}
	log.Info().Msg("Tab host stopped")
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("tab", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", "", "path to a .env file")
	flagSet.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flagSet.IntVarP(&opts.tabs, "tabs", "n", 2, "number of tabs to host")
	flagSet.BoolVar(&opts.seed, "seed", true, "create demo accounts on the in-process backend")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if opts.tabs < 1 {
		return opts, fmt.Errorf("--tabs must be at least 1, got %d", opts.tabs)
	}
	return opts, nil
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.envFile, opts.configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	displayAppname(cfg.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	origin, err := tab.NewOrigin(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := origin.Close(); err != nil {
			log.Err(err).Msg("Failed to close origin")
		}
	}()

	if opts.seed && origin.FakeBackend() != nil {
		accounts, err := origin.SeedAccounts(tab.DefaultAccounts())
		if err != nil {
			return err
		}
		for _, a := range accounts {
			log.Info().Str("email", a.Email).Str("password", a.Password).Str("role", string(a.Role)).Msg("Demo account")
		}
	}

	tabs, err := openTabs(ctx, origin, opts.tabs)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range tabs {
			if err := t.Close(); err != nil {
				log.Err(err).Msg("Failed to close tab")
			}
		}
	}()

	addr := cfg.GetHTTPAddr()
	if opts.addr != "" {
		addr = opts.addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           newRouter(cfg, tabs),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return listenAndServe(server) })
	group.Go(func() error {
		<-gctx.Done()
		return shutdown(server)
	})
	return group.Wait()
}

// openTabs creates n tabs and bootstraps them concurrently. A failed
// bootstrap leaves its tab up for a retry.
func openTabs(ctx context.Context, origin *tab.Origin, n int) ([]*tab.Tab, error) {
	tabs := make([]*tab.Tab, 0, n)
	for i := 0; i < n; i++ {
		t, err := origin.NewTab(ctx)
		if err != nil {
			for _, opened := range tabs {
				_ = opened.Close()
			}
			return nil, err
		}
		tabs = append(tabs, t)
	}

	var group errgroup.Group
	for i, t := range tabs {
		group.Go(func() error {
			if err := t.Open(ctx); err != nil {
				log.Warn().Err(err).Int("tab", i).Msg("Tab bootstrap failed")
			}
			return nil
		})
	}
	_ = group.Wait()
	return tabs, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Tab host listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func setupLogging(cfg config.EnvConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
