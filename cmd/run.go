package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ctpcj.dev/nextbus/config"
	"ctpcj.dev/nextbus/dispatch"
	"ctpcj.dev/nextbus/model"
	"ctpcj.dev/nextbus/sink"
)

var runCmd = &cobra.Command{
	Use:   "run [station...]",
	Short: "Publishes the next bus for stations every period",
	Long:  "Publishes the next bus for each station (all of them by default) to the log, and to Thinger.io if configured",
	RunE:  run,
}

var notifyCmd = &cobra.Command{
	Use:   "notify [station...]",
	Short: "Texts the next bus for stations once",
	RunE:  notify,
}

var sendSMS bool

func init() {
	runCmd.Flags().BoolVarP(&sendSMS, "sms", "", false, "Also text the next bus for each station once at startup")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(notifyCmd)
}

func publisher() sink.Publisher {
	if !cfg.Thinger.Enabled() {
		logger.Warn("thinger not configured, publishing to log")
		return &sink.Log{}
	}

	thinger := sink.NewThinger(sink.ThingerConfig{
		URLTemplate: cfg.Thinger.URLTemplate,
		User:        cfg.Thinger.User,
		Token:       cfg.Thinger.Token,
		Timeout:     cfg.Thinger.Timeout,
		Retries:     cfg.Thinger.Retries,
	})
	return sink.Multi{thinger, &sink.Log{}}
}

func smsPublisher() (sink.Publisher, error) {
	if !cfg.SMS.Enabled() {
		return nil, fmt.Errorf("sms requires sms.account_sid, sms.from, sms.to and %s", config.EnvTwilioAuthToken)
	}

	return sink.NewSMS(sink.SMSConfig{
		BaseURL:    cfg.SMS.BaseURL,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
		To:         cfg.SMS.To,
		Timeout:    cfg.SMS.Timeout,
	}), nil
}

func stationsFromArgs(args []string) (model.Registry, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	return selectStations(registry, args)
}

func sendNotifications(ctx context.Context, resolver dispatch.Resolver, selected model.Registry) error {
	sms, err := smsPublisher()
	if err != nil {
		return err
	}

	outcomes := dispatch.Notify(ctx, resolver, sms, selected, logger)
	for i, outcome := range outcomes {
		logger.Info(
			"notification",
			slog.String("station", selected[i].Name),
			slog.String("outcome", outcome.String()),
		)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	selected, err := stationsFromArgs(args)
	if err != nil {
		return err
	}

	manager, done, err := loadManager()
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sendSMS {
		err = sendNotifications(ctx, manager, selected)
		if err != nil {
			return err
		}
	}

	supervisor := dispatch.NewSupervisor(manager, publisher())
	supervisor.Period = cfg.Dispatch.Period
	supervisor.Logger = logger
	supervisor.Run(ctx, selected)

	return nil
}

func notify(cmd *cobra.Command, args []string) error {
	selected, err := stationsFromArgs(args)
	if err != nil {
		return err
	}

	manager, done, err := loadManager()
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return sendNotifications(ctx, manager, selected)
}
