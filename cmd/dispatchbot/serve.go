package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nnthruslpn/telegram-bot/db"
	"github.com/nnthruslpn/telegram-bot/dispatch"
	"github.com/nnthruslpn/telegram-bot/internal/logutil"
	"github.com/nnthruslpn/telegram-bot/internal/statepaths"
	"github.com/nnthruslpn/telegram-bot/internal/worker"
	"github.com/nnthruslpn/telegram-bot/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch bot: long-poll Telegram and process tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via config or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}
			infoChatID := viper.GetInt64("telegram.info_chat_id")
			if infoChatID == 0 {
				return fmt.Errorf("missing telegram.info_chat_id")
			}
			senderIDs := int64sFromViper("dispatch.sender_ids")
			receiverIDs := int64sFromViper("dispatch.receiver_ids")
			if len(senderIDs) == 0 || len(receiverIDs) == 0 {
				return fmt.Errorf("dispatch.sender_ids and dispatch.receiver_ids must not be empty")
			}

			store := dispatch.NewStore(statepaths.TaskStatePath(), logger)
			if err := store.Load(); err != nil {
				return fmt.Errorf("load task state: %w", err)
			}

			// The journal is a durability upgrade, not a requirement. Without it
			// the bot still runs; pending escalations just do not survive a
			// restart.
			var journal dispatch.Journal
			if gdb, err := db.Open(db.ConfigFromViper()); err != nil {
				logger.Warn("journal_unavailable", "error", err.Error())
			} else if j, err := db.NewEscalationJournal(gdb); err != nil {
				logger.Warn("journal_unavailable", "error", err.Error())
			} else {
				journal = j
			}

			client := telegram.NewClient(nil, viper.GetString("telegram.base_url"), token)
			roster, err := telegram.LoadRoster(viper.GetString("dispatch.roster_file"))
			if err != nil {
				return err
			}
			presenter, err := telegram.NewPresenter(telegram.PresenterOptions{
				Client:     client,
				InfoChatID: infoChatID,
				Roster:     roster,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			// Declared ahead of the components whose closures reference them.
			var (
				dispatcher *dispatch.Dispatcher
				runtime    *telegram.Runtime
			)

			scheduler := dispatch.NewScheduler(func(e dispatch.Escalation) {
				if dispatcher != nil {
					dispatcher.Enqueue(dispatch.EscalationFired{Escalation: e})
				}
			}, journal, logger)
			defer scheduler.Stop()

			authorize, err := dispatch.PolicyFromName(
				viper.GetString("dispatch.authorize"),
				receiverIDs,
				func(participantID int64) bool {
					return runtime != nil && runtime.IsAdmin(participantID)
				},
			)
			if err != nil {
				return err
			}

			pool := worker.NewPool(viper.GetInt("dispatch.outbound_workers"), 0)
			defer pool.Close()

			lifecycle := dispatch.NewLifecycle(dispatch.LifecycleOptions{
				Store:             store,
				Presenter:         presenter,
				Scheduler:         scheduler,
				Authorize:         authorize,
				ReceiverIDs:       receiverIDs,
				ReminderDelay:     viper.GetDuration("dispatch.reminder_delay"),
				EscalationDelay:   viper.GetDuration("dispatch.escalation_delay"),
				EscalationMention: viper.GetString("dispatch.escalation_mention"),
				Submit: func(fn func()) {
					if !pool.Submit(fn) {
						logger.Warn("outbound_queue_full")
					}
				},
				Logger: logger,
			})

			dispatcher = dispatch.NewDispatcher(dispatch.DispatcherOptions{
				Collector: dispatch.NewCollector(store),
				Lifecycle: lifecycle,
				Presenter: presenter,
				Logger:    logger,
			})

			runtime, err = telegram.NewRuntime(telegram.RuntimeOptions{
				Client:      client,
				Sink:        dispatcher,
				InfoChatID:  infoChatID,
				SenderIDs:   senderIDs,
				ReceiverIDs: receiverIDs,
				PollTimeout: viper.GetDuration("telegram.poll_timeout"),
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go dispatcher.Run(ctx)
			if n := scheduler.ArmPending(); n > 0 {
				logger.Info("journal_recovery", "rearmed", n)
			}

			logger.Info("bot_started",
				"info_chat_id", infoChatID,
				"senders", len(senderIDs),
				"receivers", len(receiverIDs),
				"journal", journal != nil,
			)
			if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("bot_stopped")
			return nil
		},
	}
	return cmd
}

func int64sFromViper(key string) []int64 {
	ints := viper.GetIntSlice(key)
	out := make([]int64, 0, len(ints))
	for _, v := range ints {
		if v != 0 {
			out = append(out, int64(v))
		}
	}
	return out
}
