package commands

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/wolfeidau/tenantgate/internal/client"
	"google.golang.org/protobuf/types/known/emptypb"
)

type CheckCmd struct {
	Server  string        `help:"Server URL" default:"http://localhost:8080" env:"TENANTGATE_SERVER"`
	Token   string        `help:"bearer token to resolve" required:"" env:"TENANTGATE_TOKEN"`
	Timeout time.Duration `help:"request timeout" default:"10s"`
}

func (c *CheckCmd) Run(ctx context.Context, globals *Globals) error {
	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return fmt.Errorf("failed to create interceptor: %w", err)
	}

	clients := client.NewClients(client.Config{
		ServerURL: c.Server,
		Token:     c.Token,
		Timeout:   c.Timeout,
		Debug:     globals.Debug,
	}, connect.WithInterceptors(otelInterceptor))

	resp, err := clients.Tenant.Whoami(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return fmt.Errorf("token rejected (%s): %w", connect.CodeOf(err), err)
	}

	fmt.Printf("isolation key:   %s\n", resp.Msg.GetValue())
	if orgID := resp.Header().Get("Tenant-Organization-Id"); orgID != "" {
		fmt.Printf("organization id: %s\n", orgID)
	}

	return nil
}
