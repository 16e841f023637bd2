package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pg-sharding/pglink/pkg/config"
	"github.com/pg-sharding/pglink/pkg/conn"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

var (
	dsn        string
	cfgPath    string
	logLevel   string
	timeout    time.Duration
	retryCount uint64
)

var rootCmd = &cobra.Command{
	Use:          "pglink",
	Short:        "protocol-level postgresql client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return pglog.UpdateZeroLogLevel(logLevel)
	},
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFile(cfgPath)
	}
	if dsn != "" {
		return config.ParseDSN(dsn)
	}
	return nil, fmt.Errorf("either --dsn or --config is required")
}

// connect dials with exponential backoff; transient dial failures are
// common right after a server restart.
func connect(ctx context.Context, cfg *config.Config) (*conn.Conn, error) {
	var c *conn.Conn
	backoff := retry.WithMaxRetries(retryCount, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		c, err = conn.Connect(ctx, cfg)
		if err != nil {
			pglog.Zero.Warn().Err(err).Msg("connect attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "connect, run an empty query cycle and report the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		c, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close(ctx)

		if _, err := c.Exec(ctx, ""); err != nil {
			return err
		}
		fmt.Printf("server %s, backend pid %d, tx status %s\n",
			c.ParameterStatus("server_version"), c.BackendPID(), c.TxStatus())
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "run sql through the simple query protocol and print the rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		c, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close(ctx)

		results, err := c.Exec(ctx, args[0])
		if err != nil {
			return err
		}
		for _, res := range results {
			for i := 0; i < res.RowCount(); i++ {
				values, err := res.Values(i)
				if err != nil {
					return err
				}
				fmt.Println(values...)
			}
			fmt.Println(res.CommandTag)
		}
		return nil
	},
}

var notifyCmd = &cobra.Command{
	Use:   "listen <channel>",
	Short: "listen on a channel and print notifications until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		c, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close(ctx)

		c.SetNotificationHandler(func(n *conn.Notification) {
			fmt.Printf("%s: %s (pid %d)\n", n.Channel, n.Payload, n.PID)
		})

		if _, err := c.Exec(ctx, "LISTEN "+args[0]); err != nil {
			return err
		}
		// Notifications ride the response stream; keep it moving with a
		// periodic empty query cycle.
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			if _, err := c.Exec(ctx, ""); err != nil {
				return err
			}
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&dsn, "dsn", "d", "", `connection string, e.g. "host=localhost user=postgres"`)
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a toml connection profile")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warning, error, fatal")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "overall operation timeout")
	rootCmd.PersistentFlags().Uint64Var(&retryCount, "connect-retries", 3, "dial retry attempts")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(notifyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
