package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tamaroning/blockchain-sim/logger"
	"github.com/tamaroning/blockchain-sim/rpc"
	"github.com/tamaroning/blockchain-sim/stats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a finished run's archive over HTTP",
	Long: `Expose the LevelDB archive written by a previous simulate run as a small
read-only HTTP API (/summary, /blocks, /blocks/{hash}).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1", "listen address")
	serveCmd.Flags().Int("port", 8645, "listen port")
	viper.BindPFlag("serve_addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("serve_port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.SetLevel(logger.ParseLevel(viper.GetString("log_level")))

	dir := viper.GetString("archive")
	if dir == "" {
		return fmt.Errorf("serve requires --archive pointing at a finished run")
	}
	archive, err := stats.OpenArchive(dir)
	if err != nil {
		return err
	}
	defer archive.Close()

	server := rpc.NewServer(&rpc.Config{
		Host: viper.GetString("serve_addr"),
		Port: viper.GetInt("serve_port"),
	}, archive)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}
