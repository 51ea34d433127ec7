// maintenance-ctl 维护预测流水线的命令行工具
//
// Usage:
//
//	maintenance-ctl predict --device printer-1
//	maintenance-ctl feedback --prediction 42 --correct --comment "toner replaced"
//	maintenance-ctl retrain
//	maintenance-ctl stats --from 2026-03-01T00:00:00Z
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/common/logger"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/feedback"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/service"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "maintenance-ctl",
		Usage:   "Printer maintenance prediction control tool",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"CTL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			predictCommand(),
			recentCommand(),
			feedbackCommand(),
			materializeCommand(),
			retrainCommand(),
			runsCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withService 按环境配置建立服务，执行 fn 后释放资源
func withService(c *cli.Context, fn func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(c.String("log-level"), "console", "maintenance-ctl")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := c.Context
	svc, err := service.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Stop()

	out, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Generate maintenance predictions for a device",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Device ID", Required: true},
			&cli.DurationFlag{Name: "horizon", Usage: "Prediction horizon (default from config)"},
		},
		Action: func(c *cli.Context) error {
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.PredictMaintenance(ctx, c.String("device"), c.Duration("horizon"))
			})
		},
	}
}

func recentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "Show the latest prediction per failure type",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Device ID (empty for all devices)"},
		},
		Action: func(c *cli.Context) error {
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.GetRecentPredictions(ctx, c.String("device"))
			})
		},
	}
}

func feedbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "feedback",
		Usage: "Submit technician feedback on a prediction",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "prediction", Aliases: []string{"p"}, Usage: "Prediction ID", Required: true},
			&cli.BoolFlag{Name: "correct", Usage: "The prediction was correct"},
			&cli.StringFlag{Name: "comment", Aliases: []string{"m"}, Usage: "Comment"},
			&cli.StringFlag{Name: "correction", Usage: "Proposed correction"},
			&cli.StringFlag{Name: "author", Value: os.Getenv("USER"), Usage: "Author"},
		},
		Action: func(c *cli.Context) error {
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.SubmitFeedback(ctx, feedback.SubmitRequest{
					PredictionID:       c.Int64("prediction"),
					IsCorrect:          c.Bool("correct"),
					Comment:            c.String("comment"),
					ProposedCorrection: c.String("correction"),
					Author:             c.String("author"),
				})
			})
		},
	}
}

func materializeCommand() *cli.Command {
	return &cli.Command{
		Name:  "materialize",
		Usage: "Record the actual outcome for a feedback entry",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "feedback", Aliases: []string{"f"}, Usage: "Feedback ID", Required: true},
			&cli.BoolFlag{Name: "occurred", Usage: "The predicted event occurred"},
			&cli.IntFlag{Name: "days", Value: -1, Usage: "Days from prediction to event (omit if unknown)"},
		},
		Action: func(c *cli.Context) error {
			var days *int
			if d := c.Int("days"); d >= 0 {
				days = &d
			}
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.MaterializeTrainingRecord(ctx, c.Int64("feedback"), days, c.Bool("occurred"))
			})
		},
	}
}

func retrainCommand() *cli.Command {
	return &cli.Command{
		Name:  "retrain",
		Usage: "Retrain the model from accumulated training records",
		Action: func(c *cli.Context) error {
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.RetrainModel(ctx)
			})
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show retraining history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Show a single run"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of runs"},
		},
		Action: func(c *cli.Context) error {
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				if id := c.String("id"); id != "" {
					return svc.GetRetrainingRun(ctx, id)
				}
				return svc.ListRetrainingRuns(ctx, c.Int("limit"))
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show prediction accuracy statistics",
		Flags: statsFlags(),
		Action: func(c *cli.Context) error {
			from, to, err := statsRange(c)
			if err != nil {
				return err
			}
			return withService(c, func(ctx context.Context, svc *service.MaintenanceService) (interface{}, error) {
				return svc.GetAdvancedStatistics(ctx, from, to)
			})
		},
	}
}

func statsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.TimestampFlag{Name: "from", Layout: time.RFC3339, Usage: "Window start (RFC3339)"},
		&cli.TimestampFlag{Name: "to", Layout: time.RFC3339, Usage: "Window end (RFC3339)"},
	}
}

// statsRange 解析 --from/--to；未给出的一端为 nil
func statsRange(c *cli.Context) (from, to *time.Time, err error) {
	from, to = c.Timestamp("from"), c.Timestamp("to")
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, fmt.Errorf("--from %s is after --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}
