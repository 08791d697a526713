package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/ytfilter/internal/app"
	browseropts "github.com/ibeckermayer/ytfilter/internal/browser"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/store"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the feed in a browser and filter it until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		dry, _ := cmd.Flags().GetBool("no-browser")
		return withApp(cmd, !dry, func(e *env, a *app.App) error {
			fmt.Printf("Session %s started, press Ctrl-C to stop\n", a.SessionID())
			return a.Run(cmd.Context())
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the scoring endpoint is online",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(e *env, a *app.App) error {
			url := a.Filter().HealthURL()
			s := a.CheckHealth(cmd.Context())
			if !s.Online {
				return fmt.Errorf("%s is offline: %w", url, s.Err)
			}
			fmt.Printf("%s is online\n", url)
			return nil
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score TITLE",
	Short: "Score one title with the configured model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("channel")
		id, _ := cmd.Flags().GetString("id")
		return withApp(cmd, false, func(e *env, a *app.App) error {
			res := a.Score(cmd.Context(), types.Item{ID: id, Title: args[0], Channel: channel})
			verdict := "shown"
			if res.Score < a.Filter().Threshold {
				verdict = "hidden"
			}
			fmt.Printf("%d (%s): %s\n", res.Score, verdict, res.Reason)
			if !res.Scored {
				return fmt.Errorf("scoring endpoint did not answer, neutral score used")
			}
			return nil
		})
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage watched topics",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched topics, most watched first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(e *env, a *app.App) error {
			topics := a.Topics()
			if len(topics) == 0 {
				fmt.Println("No watched topics")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tCOUNT\tLAST SEEN")
			for _, t := range topics {
				fmt.Fprintf(w, "%s\t%d\t%s\n", t.Topic, t.Count, t.Seen().Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

var topicsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every watched topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(e *env, a *app.App) error {
			a.ClearTopics()
			fmt.Println("Watched topics cleared")
			return nil
		})
	},
}

var topicsRemoveCmd = &cobra.Command{
	Use:   "remove TOPIC",
	Short: "Forget one watched topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(e *env, a *app.App) error {
			if !a.RemoveTopic(args[0]) {
				return fmt.Errorf("no watched topic %q", args[0])
			}
			fmt.Printf("Removed %q\n", args[0])
			return nil
		})
	},
}

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "List how often each video has been shown",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, false, func(e *env, a *app.App) error {
			views := a.Views()
			ids := make([]string, 0, len(views))
			for id := range views {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				if views[ids[i]].Count != views[ids[j]].Count {
					return views[ids[i]].Count > views[ids[j]].Count
				}
				return ids[i] < ids[j]
			})
			if limit > 0 && len(ids) > limit {
				ids = ids[:limit]
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VIDEO\tVIEWS\tLAST SEEN")
			for _, id := range ids {
				v := views[id]
				fmt.Fprintf(w, "%s\t%d\t%s\n", id, v.Count, v.Seen().Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set threshold|cooldown|max-topics|endpoint VALUE",
	Short: "Change a runtime filter setting",
	Long: `set stores one filter setting in the database, where it takes precedence
over the [filter] section of the config file. A running tray picks the
change up on Reload Config.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"threshold", "cooldown", "max-topics", "endpoint"},
	RunE: func(cmd *cobra.Command, args []string) error {
		name, value := args[0], args[1]
		return withApp(cmd, false, func(e *env, a *app.App) error {
			ctx := cmd.Context()
			var err error
			switch name {
			case "endpoint":
				err = a.SetAPIEndpoint(ctx, value)
			case "threshold", "cooldown", "max-topics":
				n, convErr := strconv.Atoi(value)
				if convErr != nil {
					return fmt.Errorf("%s must be a whole number: %w", name, convErr)
				}
				switch name {
				case "threshold":
					err = a.SetThreshold(ctx, n)
				case "cooldown":
					err = a.SetTopicCooldown(ctx, n)
				default:
					err = a.SetMaxTopicVideos(ctx, n)
				}
			default:
				return fmt.Errorf("unknown setting %q", name)
			}
			if err != nil {
				return err
			}

			f := a.Filter()
			fmt.Printf("threshold=%d cooldown=%dd max-topics=%d endpoint=%s\n",
				f.Threshold, f.TopicCooldownDays, f.MaxTopicVideos, f.APIEndpoint)
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:       "open config|data|cache|report",
	Short:     "Open a config file or directory",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"config", "data", "cache", "report"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		var err error

		switch args[0] {
		case "config":
			path, err = config.ConfigPath()
			if configPath != "" {
				path = configPath
			}
		case "data":
			path, err = config.DataDir()
		case "cache":
			path, err = config.CacheDir()
		case "report":
			path, err = store.LatestReport()
		}
		if err != nil {
			return fmt.Errorf("failed to get path: %w", err)
		}
		return browser.OpenFile(path)
	},
}

var botTestCmd = &cobra.Command{
	Use:   "bot-test",
	Short: "Open bot.sannysoft.com to audit the browser fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx, cancel := browseropts.NewContext(cmd.Context(), false, e.logger)
		defer cancel()

		if err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
			chromedp.WaitVisible("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}

		fmt.Println("Press Enter to close the browser...")
		fmt.Scanln()
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to YouTube and store the session cookies",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		am, err := e.authManager()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()
		if err := am.Login(ctx); err != nil {
			return err
		}
		fmt.Println("Signed in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored YouTube cookies",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		am, err := e.authManager()
		if err != nil {
			return err
		}
		if err := am.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("no-browser", false, "run the scheduler and jobs without opening the feed")
	scoreCmd.Flags().String("channel", "Unknown", "channel name sent with the title")
	scoreCmd.Flags().String("id", "cli", "video id used as the cache key")
	viewsCmd.Flags().Int("limit", 50, "maximum rows to print, 0 for all")

	topicsCmd.AddCommand(topicsListCmd)
	topicsCmd.AddCommand(topicsClearCmd)
	topicsCmd.AddCommand(topicsRemoveCmd)
}
