package cli

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"covid-parser/internal/handler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(e *env) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dispatcher over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.App()
			if err != nil {
				return err
			}
			if port > 0 {
				app.Config.Server.Port = port
			}
			return RunServer(cmd.Context(), app)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

// RunServer listens on the configured address until ctx is done, then
// shuts the server down gracefully.
func RunServer(ctx context.Context, app *App) error {
	ctrl := handler.NewController(app.Service, app.Cache, app.Metrics.Handler(), app.Log)
	srv := ctrl.App()
	addr := net.JoinHostPort(app.Config.Server.Host, strconv.Itoa(app.Config.Server.Port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(addr)
	}()
	app.Log.WithField("addr", addr).Info("Server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Log.Info("Shutting down")
	if err := srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	app.Log.Info("Server stopped")
	return nil
}
