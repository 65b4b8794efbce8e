package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

const serviceName = "jwt-cookie-ws"

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Cookie JWT + CSRF authorization for WebSocket connections",
	Long: `jwt-cookie-ws serves WebSocket endpoints that authenticate browsers with an
HttpOnly JWT cookie plus a double-submit CSRF token, along with the HTTP
endpoints that issue, refresh and revoke those cookies.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd, tokenCmd)
}
