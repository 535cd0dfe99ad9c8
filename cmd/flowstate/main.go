// Command flowstate runs the browser native messaging host and offers
// terminal access to the time ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flowstate/internal/app"
	"flowstate/internal/config"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/nativemsg"
	"flowstate/internal/platform"
	"flowstate/internal/render"
	"flowstate/internal/types"
)

var (
	configPath string
	pretty     = true
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowstate",
		Short: "Browser time accounting",
		Long: `FlowState records time spent per website and classifies it as
productive, distracting or neutral.

The browser extension starts 'flowstate host' as its native messaging
host. The other commands read and adjust the same ledger.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config dir)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.AddCommand(
		hostCmd(),
		todayCmd(),
		recentCmd(),
		taskCmd(),
		trackCmd(),
		classifyCmd(),
		pruneCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logging.DefaultLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	// stdout carries native messaging frames in host mode
	logger := logging.NewLogger(os.Stderr, cfg.Level(), "flowstate")
	return cfg, logger, nil
}

// withRuntime opens the ledger for the duration of fn
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := app.NewRuntime(ctx, cfg, platform.SystemClock{}, logger.With(cmd.Name()))
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	return fn(ctx, rt)
}

func renderer() *render.Renderer {
	if !pretty {
		color.NoColor = true
	}
	return render.New(pretty)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func hostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host [origin]",
		Short: "Run as the extension's native messaging host",
		Long: `Serve the browser extension over stdin/stdout until the browser
closes the port. Browsers pass the calling extension's origin as the
first argument; it is logged and otherwise ignored.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.SetContext(ctx)
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if len(args) > 0 {
					rt.Logger.Info("Started by browser", "origin", args[0])
				}
				host := app.NewHost(rt, nativemsg.NewConn(os.Stdin, os.Stdout))
				return host.Run(ctx)
			})
		},
	}
	// Chrome on Windows appends --parent-window=<hwnd>
	cmd.Flags().Int64("parent-window", 0, "")
	cmd.Flags().MarkHidden("parent-window")
	return cmd
}

func todayCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's totals and top domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				bucket, err := rt.Ledger.TodaysBucket(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(bucket)
				}
				fmt.Print(renderer().Bucket(rt.Ledger.Today(), bucket, top))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Number of domains to list")
	return cmd
}

func recentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent [days]",
		Short: "Summarise the most recent tracked days",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 7
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return fmt.Errorf("days must be a positive number, got %q", args[0])
				}
				n = parsed
			}

			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				seq, err := rt.Ledger.RecentBuckets(ctx, n)
				if err != nil {
					return err
				}

				var days []render.Day
				for date, bucket := range seq {
					days = append(days, render.Day{Date: date, Bucket: bucket})
				}
				if jsonOutput {
					return printJSON(days)
				}
				fmt.Println(renderer().Days(days))
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Adjust today's completed task count",
	}

	adjust := func(use, short string, apply func(context.Context, *app.Runtime) (int64, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
					total, err := apply(ctx, rt)
					if err != nil {
						return err
					}
					fmt.Println(renderer().Success("%d tasks completed today", total))
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		adjust("complete", "Record a completed task", func(ctx context.Context, rt *app.Runtime) (int64, error) {
			return rt.Ledger.TaskCompleted(ctx)
		}),
		adjust("uncomplete", "Undo a completed task", func(ctx context.Context, rt *app.Runtime) (int64, error) {
			return rt.Ledger.TaskUncompleted(ctx)
		}),
	)
	return cmd
}

func trackCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "track <domain> <minutes>",
		Short: "Add minutes to a domain directly",
		Long: `Add minutes to a domain for today without a browser session.
Without --category the domain is classified from the configured lists.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("minutes must be a whole number, got %q", args[1])
			}

			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				booked, err := rt.Ledger.TrackWebsite(ctx, args[0], minutes, category)
				if err != nil {
					return err
				}
				r := renderer()
				fmt.Println(r.Success("%s +%s (%s)", args[0], render.Minutes(minutes), r.Category(booked)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "productive, distracting or neutral")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <hostname>...",
		Short: "Show the category each hostname would be booked under",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			c := cfg.NewClassifier()

			if jsonOutput {
				out := make(map[string]types.Category, len(args))
				for _, host := range args {
					out[host] = c.Classify(host)
				}
				return printJSON(out)
			}

			r := renderer()
			for _, host := range args {
				fmt.Printf("%s\t%s\n", host, r.Category(c.Classify(host)))
			}
			return nil
		},
	}
}

func pruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove days outside the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				days := keep
				if days == 0 {
					days = rt.Config.Database.RetentionDays
				}
				if days == 0 {
					fmt.Println("Retention is disabled; pass --keep to prune")
					return nil
				}

				removed, err := rt.Ledger.Prune(ctx, days)
				if err != nil {
					return err
				}
				if err := rt.DB.Optimize(ctx); err != nil {
					rt.Logger.Warn("Database optimize failed", "error", err)
				}
				fmt.Println(renderer().Success("removed %d days, kept the last %d", removed, days))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Days to keep (default: database.retentionDays)")
	return cmd
}
