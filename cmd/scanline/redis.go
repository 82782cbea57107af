package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/home"
	"github.com/jackzampolin/scanline/internal/redisbox"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Manage the Redis container for the analytics stream",
	Long: `Manage the local Redis container that receives OCR attempt events.

The server starts this container itself when analytics.redis.enabled and
analytics.redis.container are both true. These commands manage it by hand.
Data is persisted to ~/.scanline/redis/.

Examples:
  scanline redis start    # Start the Redis container
  scanline redis stop     # Stop the container (data preserved)
  scanline redis status   # Check container status
  scanline redis events   # Show events from the start of the stream
  scanline redis logs     # View container logs`,
}

var redisStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Redis container",
	Long: `Start the Redis container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.ValidateExisting(cmd.Context()); err != nil {
			return fmt.Errorf("existing container incompatible: %w", err)
		}
		fmt.Println("Starting Redis...")
		if err := mgr.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start Redis: %w", err)
		}
		printOK("Redis is running at %s", mgr.Addr())
		return nil
	},
}

var redisStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Redis container",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.Stop(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop Redis: %w", err)
		}
		printOK("Redis stopped")
		return nil
	},
}

var redisStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Redis container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case redisbox.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("Addr: %s\n", mgr.Addr())
		case redisbox.StatusStopped:
			fmt.Printf("Status: %s (use 'scanline redis start' to start)\n", status)
		case redisbox.StatusNotFound:
			fmt.Printf("Status: %s (use 'scanline redis start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}
		return nil
	},
}

var redisLogsTail string

var redisLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show Redis container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(cmd.Context(), redisLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}
		fmt.Print(logs)
		return nil
	},
}

var redisRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the Redis container",
	Long: `Remove the Redis container.

This stops and removes the container. Data in ~/.scanline/redis/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}
		printOK("Redis container removed (data preserved)")
		return nil
	},
}

var redisWaitTimeout time.Duration

var redisWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for Redis to be ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getRedisManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Printf("Waiting for Redis (timeout: %s)...\n", redisWaitTimeout)
		if err := mgr.WaitReady(cmd.Context(), redisWaitTimeout); err != nil {
			return fmt.Errorf("Redis not ready: %w", err)
		}
		printOK("Redis is ready")
		return nil
	},
}

var redisEventsCount int64

var redisEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show events from the start of the analytics stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		rc := cm.Get().ToRedisConfig()

		if cm.Get().Analytics.Redis.Container {
			mgr, err := newRedisManager(h)
			if err != nil {
				return err
			}
			rc.Addr = mgr.Addr()
			mgr.Close()
		}

		sink, err := analytics.NewRedisSink(cmd.Context(), rc)
		if err != nil {
			return err
		}
		defer sink.Close()

		events, err := sink.Read(cmd.Context(), redisEventsCount)
		if err != nil {
			return err
		}
		return api.Output(events)
	},
}

func init() {
	redisCmd.AddCommand(redisStartCmd)
	redisCmd.AddCommand(redisStopCmd)
	redisCmd.AddCommand(redisStatusCmd)
	redisCmd.AddCommand(redisLogsCmd)
	redisCmd.AddCommand(redisRemoveCmd)
	redisCmd.AddCommand(redisWaitCmd)
	redisCmd.AddCommand(redisEventsCmd)

	redisLogsCmd.Flags().StringVar(&redisLogsTail, "tail", "100", "Number of lines to show from the end")
	redisWaitCmd.Flags().DurationVar(&redisWaitTimeout, "timeout", 30*time.Second, "Timeout waiting for Redis")
	redisEventsCmd.Flags().Int64Var(&redisEventsCount, "count", 20, "Number of events to read")

	rootCmd.AddCommand(redisCmd)
}

// getRedisManager creates a DockerManager from the home directory and config.
func getRedisManager() (*redisbox.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	return newRedisManager(h)
}

func newRedisManager(h *home.Dir) (*redisbox.DockerManager, error) {
	cm, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	rc := cm.Get().Analytics.Redis
	return redisbox.NewDockerManager(redisbox.DockerConfig{
		ContainerName: rc.ContainerName,
		HomePath:      h.Path(),
		Image:         rc.Image,
		DataPath:      h.RedisDataPath(),
		HostPort:      rc.Port,
	})
}
