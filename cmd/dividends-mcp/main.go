// Command dividends-mcp serves the dividends tools over MCP streamable HTTP.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/mcp"
	"github.com/effective-security/mcpconverse/pkg/config"
	"github.com/effective-security/mcpconverse/tools/dividends"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "dividends-mcp")

// ServerName is reported to MCP clients.
const ServerName = "dividends"

type flags struct {
	cfgFile string
	debug   bool
	listen  string
	path    string
	data    string
}

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "dividends-mcp",
		Short:        "MCP tool host for dividends and quotes",
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&f.cfgFile, "cfg", "", "path to the configuration file")
	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "enable debug logging")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve get_dividends and get_quote over streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	serve.Flags().StringVar(&f.listen, "listen", "", "listen address")
	serve.Flags().StringVar(&f.path, "path", "", "URL path of the MCP endpoint")
	serve.Flags().StringVar(&f.data, "data", "", "market data YAML file")

	cmd.AddCommand(serve)
	return cmd
}

func loadConfig(f *flags) (*config.Configuration, error) {
	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return nil, err
	}
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}
	if f.path != "" {
		cfg.Server.Path = f.path
	}
	if f.data != "" {
		cfg.Server.DataFile = f.data
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if f.debug {
		level = xlog.DEBUG
	}
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(level)
	return cfg, nil
}

func loadData(file string) (*dividends.Data, error) {
	if file == "" {
		return dividends.Default()
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", file)
	}
	return dividends.Load(b)
}

// newHandler returns the HTTP handler serving the tools at path.
func newHandler(cfg *config.Configuration) (http.Handler, error) {
	data, err := loadData(cfg.Server.DataFile)
	if err != nil {
		return nil, err
	}
	list, err := dividends.Tools(data)
	if err != nil {
		return nil, err
	}

	server := mcp.NewServer(ServerName, cfg.Server.Version, list...)
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, mcp.Handler(server))

	logger.KV(xlog.INFO,
		"status", "tools_registered",
		"count", len(list),
		"symbols", data.Known(),
	)
	return mux, nil
}

func serve(ctx context.Context, cfg *config.Configuration) error {
	handler, err := newHandler(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "addr", cfg.Server.Listen, "path", cfg.Server.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.KV(xlog.INFO, "status", "shutting_down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}
	return nil
}
