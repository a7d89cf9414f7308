package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow engine as an MCP server",
	Long: "Runs the flow engine as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes the hook and admin tools: begin, enter, exit, check, rules, allow, status.\n" +
		"The config file is watched and hot-reloaded on change.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, server.Config{ConfigPath: configPath})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down flowguard...")
		cancel()
	}()

	reloader, err := server.NewReloader(srv, srv.ConfigPaths())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watch disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	fmt.Fprintln(os.Stderr, "flowguard MCP server running on stdio")
	return srv.Run(ctx)
}
