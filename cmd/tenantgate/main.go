package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/tenantgate/cmd/tenantgate/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"TENANTGATE_DEBUG"`
		Version kong.VersionFlag

		Serve   commands.ServeCmd   `cmd:"" help:"Start the tenant gateway"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Check   commands.CheckCmd   `cmd:"" help:"Resolve a bearer token against a running gateway"`
	}
)

func main() {
	// Flags read their env defaults during parsing, so .env has to be loaded first.
	envFile := os.Getenv("TENANTGATE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("tenantgate"),
		kong.Description("Tenant-scoped bearer token authentication gateway."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
