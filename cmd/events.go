/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

var eventsTailCmd = &cobra.Command{
	Use:       "tail <channel>",
	Short:     "Subscribe to a channel and log every event received",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{mq.ChannelUsers, mq.ChannelTasks},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadMQConfig()
		if err != nil {
			return err
		}
		log := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		channel := args[0]
		log.Info(ctx, "tailing events", "channel", channel, "backend", cfg.Backend)

		err = broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			event, err := mq.DecodeEvent(msg)
			if err != nil {
				// Undecodable messages are acknowledged so they do not redeliver forever.
				log.Warn(ctx, "skipping undecodable message", "message_id", msg.ID, "error", err)
				return nil
			}
			log.Info(ctx, "event",
				"channel", channel,
				"id", event.ID,
				"type", event.Type,
				"subject", event.Subject,
				"occurred_at", event.OccurredAt,
				"payload", string(event.Payload),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
