package serve

import (
	"github.com/spf13/cobra"

	"github.com/sonoscan/sonoscan/internal/api"
	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability"
)

// Command creates the serve command, which runs the HTTP API until interrupted.
func Command(ctx *conf.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serve predictions, reports, feedback and analytics over HTTP. Stops gracefully on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx)
		},
	}
}

func run(cmd *cobra.Command, ctx *conf.Context) error {
	settings := ctx.Settings
	log := logger.Global().Module("main")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing datastore", logger.Error(err))
		}
	}()
	store.SetMetrics(m.Datastore)

	loader := classifier.NewLoader(classifier.LoaderConfigFromSettings(settings))

	srv, err := api.New(settings,
		api.WithDataStore(store),
		api.WithLoader(loader),
		api.WithMetrics(m),
		api.WithBuildInfo(ctx.Build),
	)
	if err != nil {
		return err
	}

	log.Info("sonoscan starting",
		logger.String("version", ctx.Build.GetVersion()),
		logger.String("port", settings.WebServer.Port))
	return srv.StartWithGracefulShutdown(cmd.Context())
}
