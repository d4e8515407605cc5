package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goliatone/go-command"
	"github.com/urfave/cli/v3"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/httpapi"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "integrationsd",
		Usage:   "OAuth integrations, automation triggers and request tracking",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("INTEGRATIONS_CONFIG"),
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a JSON config file",
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("DEBUG"),
				Name:    "debug",
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			providersCommand(),
		},
	}
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Sources: cli.EnvVars("DB_DRIVER"),
			Name:    "db-driver",
			Value:   "sqlite",
			Usage:   "database driver, sqlite or postgres",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("DATABASE_URL"),
			Name:    "db-dsn",
			Value:   "file:integrations.db?_foreign_keys=on",
			Usage:   "database connection string",
		},
	}
}

func serveCommand() *cli.Command {
	flags := append(databaseFlags(),
		&cli.StringFlag{
			Sources: cli.EnvVars("LISTEN_ADDR"),
			Name:    "addr",
			Value:   ":8080",
			Usage:   "HTTP listen address",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("SITE_URL"),
			Name:    "site-url",
			Usage:   "public base URL used to build OAuth redirect URIs",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("DISPATCHER_BASE_URL"),
			Name:    "dispatcher-url",
			Usage:   "base URL of the downstream execution functions",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("DISPATCHER_SERVICE_TOKEN"),
			Name:    "service-token",
			Usage:   "service token used for polling triggers",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("IDENTITY_USER_URL"),
			Name:    "identity-url",
			Usage:   "endpoint returning the user record for a bearer token",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("IDENTITY_API_KEY"),
			Name:    "identity-api-key",
			Usage:   "apikey header sent to the identity endpoint",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("SESSION_SECRET"),
			Name:    "session-secret",
			Usage:   "cookie session signing secret; sessions are off when empty",
		},
		&cli.BoolFlag{
			Sources: cli.EnvVars("SECURE_COOKIES"),
			Name:    "secure-cookies",
			Usage:   "mark session cookies Secure",
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and follow-up worker",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger(os.Stderr, cmd.Bool("debug"))

			values, err := loadConfigValues(cmd.String("config"))
			if err != nil {
				return err
			}
			overlayFlag(values, []string{"oauth", "site_url"}, cmd.String("site-url"))
			overlayFlag(values, []string{"dispatcher", "base_url"}, cmd.String("dispatcher-url"))
			overlayFlag(values, []string{"dispatcher", "service_token"}, cmd.String("service-token"))

			client, err := openDatabase(ctx, databaseConfig{
				driver: cmd.String("db-driver"),
				dsn:    cmd.String("db-dsn"),
				debug:  cmd.Bool("debug"),
			}, true)
			if err != nil {
				return err
			}
			defer client.Close()

			registry := command.NewRegistry()
			rt, err := integrations.Compose(ctx, integrations.Config{}, integrations.RuntimeOptions{
				ConfigValues:      values,
				Credentials:       providers.CredentialsFromEnv(os.LookupEnv),
				PersistenceClient: client,
				LoggerProvider:    slogProvider{root: logger},
				Logger:            logger,
				CommandRegistry:   registry,
			})
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := registry.Initialize(); err != nil {
				return fmt.Errorf("initialize command registry: %w", err)
			}

			server, err := httpapi.NewServer(rt.Facade, identity.NewResolver(identity.Config{
				UserInfoURL: cmd.String("identity-url"),
				APIKey:      cmd.String("identity-api-key"),
			}), httpapi.WithLogger(rt.Logger(gologger.LoggerHTTP)))
			if err != nil {
				return err
			}
			router := httpapi.NewRouter(server, httpapi.RouterConfig{
				SessionSecret: []byte(cmd.String("session-secret")),
				SecureCookies: cmd.Bool("secure-cookies"),
			})

			workerDone := rt.Start(ctx)

			httpServer := &http.Server{
				Addr:              cmd.String("addr"),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Info("http server listening", "addr", httpServer.Addr)
				serveErr <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("http server shutdown", "error", err.Error())
				}
			}
			<-workerDone
			logger.Info("integrationsd stopped")
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Flags: databaseFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger(os.Stderr, cmd.Bool("debug"))
			client, err := openDatabase(ctx, databaseConfig{
				driver: cmd.String("db-driver"),
				dsn:    cmd.String("db-dsn"),
				debug:  cmd.Bool("debug"),
			}, true)
			if err != nil {
				return err
			}
			defer client.Close()
			logger.Info("migrations applied", "driver", cmd.String("db-driver"))
			return nil
		},
	}
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "list known providers and whether they are configured",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			values, err := loadConfigValues(cmd.String("config"))
			if err != nil {
				return err
			}
			rt, err := integrations.Compose(ctx, integrations.Config{}, integrations.RuntimeOptions{
				ConfigValues: values,
				Credentials:  providers.CredentialsFromEnv(os.LookupEnv),
			})
			if err != nil {
				return err
			}

			configured := map[string]bool{}
			for _, listing := range rt.Service.ListProviders() {
				configured[listing.Key] = true
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tPKCE\tCONFIGURED")
			for _, provider := range rt.Registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\n",
					provider.Key,
					provider.Descriptor.DisplayName,
					provider.UsePKCE,
					configured[provider.Key],
				)
			}
			return w.Flush()
		},
	}
}

func loadConfigValues(path string) (map[string]any, error) {
	values := map[string]any{}
	path = strings.TrimSpace(path)
	if path == "" {
		return values, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return values, nil
}

// overlayFlag writes value at path unless it is blank.
func overlayFlag(values map[string]any, path []string, value string) {
	value = strings.TrimSpace(value)
	if value == "" || len(path) == 0 {
		return
	}
	node := values
	for _, key := range path[:len(path)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[key] = next
		}
		node = next
	}
	node[path[len(path)-1]] = value
}
