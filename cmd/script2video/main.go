package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/effects"
	"github.com/ivlev/script2video/internal/engine"
	"github.com/ivlev/script2video/internal/feedback"
	"github.com/ivlev/script2video/internal/logging"
	"github.com/ivlev/script2video/internal/ratings"
	"github.com/ivlev/script2video/internal/renderer"
	"github.com/ivlev/script2video/internal/source"
	"github.com/ivlev/script2video/internal/storyboard"
	"github.com/ivlev/script2video/internal/system"
	"github.com/ivlev/script2video/internal/video"
)

var (
	cfgFile  string
	verbose  bool
	inputDir string
	noRender bool
	comment  string
	stats    bool
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "script2video",
	Short:        "script2video - lesson scripts to narrated-slide videos",
	Long:         "Turns a lesson script into a timed storyboard, renders it to video and adapts pacing to viewer ratings.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logging.Init("info", verbose)
			return err
		}
		logging.Init(cfg.LogLevel, verbose)
		if stats {
			cfg.Render.ShowStats = true
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: nearest config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	buildCmd.Flags().StringVar(&inputDir, "input-dir", "input", "directory searched for the newest script when none is given")
	buildCmd.Flags().BoolVar(&noRender, "no-render", false, "only write the storyboard")
	rateCmd.Flags().StringVarP(&comment, "comment", "m", "", "optional comment")
	for _, c := range []*cobra.Command{buildCmd, renderCmd, regenerateCmd} {
		c.Flags().BoolVar(&stats, "stats", false, "print a performance report")
	}

	rootCmd.AddCommand(buildCmd, renderCmd, adaptCmd, regenerateCmd, rateCmd, ratingsCmd, showCmd)
}

// withEngine opens the rating store, wires the engine and closes the store
// once fn returns.
func withEngine(cmd *cobra.Command, fn func(*engine.Engine) error) error {
	cfg := config.FromContext(cmd.Context())
	logger := log.Logger

	system.InitResourceLimits(logger)

	store, err := ratings.Open(cfg.DBPath, logging.WithComponent(logger, "ratings"))
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := renderer.NewFFmpegRenderer(cfg.Render, &video.FFmpegEncoder{}, &effects.DefaultEffect{}, logging.WithComponent(logger, "renderer"))
	if err != nil {
		return err
	}
	adapter := feedback.NewAdapter(store, &feedback.FileSink{Path: cfg.TelemetryPath}, logging.WithComponent(logger, "feedback"))

	eng := engine.New(cfg, source.FileSource{}, store, adapter, r, logging.WithComponent(logger, "engine"))
	return fn(eng)
}

var buildCmd = &cobra.Command{
	Use:   "build [script]",
	Short: "Build a storyboard from a script and render it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			latest, err := source.FindLatestScript(inputDir)
			if err != nil {
				return err
			}
			log.Info().Str("script", latest).Msg("using newest script")
			path = latest
		}

		return withEngine(cmd, func(e *engine.Engine) error {
			res, err := e.Generate(cmd.Context(), path, !noRender)
			if res != nil {
				fmt.Printf("video id:   %s\nstoryboard: %s\n", res.VideoID, res.StoryboardPath)
				if res.VideoPath != "" {
					fmt.Printf("video:      %s\n", res.VideoPath)
				}
			}
			return err
		})
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [video id]",
	Short: "Render the stored storyboard of a video as is",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engine.Engine) error {
			res, err := e.Render(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(res.VideoPath)
			return nil
		})
	},
}

var adaptCmd = &cobra.Command{
	Use:   "adapt [video id]",
	Short: "Apply the rating signal to a stored storyboard without rendering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engine.Engine) error {
			res, err := e.Adapt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("signal %.2f, total %.1fs, %s\n", res.Signal, res.Storyboard.TotalDuration(), res.StoryboardPath)
			return nil
		})
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate [video id]",
	Short: "Adapt a storyboard to its ratings and render it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engine.Engine) error {
			res, err := e.Regenerate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("signal %.2f, total %.1fs\n%s\n", res.Signal, res.Storyboard.TotalDuration(), res.VideoPath)
			return nil
		})
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate [video id] [1-5]",
	Short: "Record a rating for a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating must be an integer 1..5: %w", err)
		}
		return withEngine(cmd, func(e *engine.Engine) error {
			return e.Rate(cmd.Context(), args[0], rating, comment)
		})
	},
}

var ratingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "List videos with their rating count and average",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engine.Engine) error {
			summary, err := e.Ratings(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRATINGS\tAVG\tTITLE")
			for _, s := range summary {
				fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\n", s.VideoID, s.Count, s.AverageRating, s.Title)
			}
			return w.Flush()
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [video id]",
	Short: "Print a video's registry entry, rating signal and storyboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engine.Engine) error {
			st, err := e.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:         %s\ntitle:      %s\nstoryboard: %s\nvideo:      %s\nsignal:     %.2f\n\n",
				st.Video.ID, st.Video.Title, st.Video.StoryboardPath, st.Video.VideoPath, st.Signal)

			data, err := storyboard.Marshal(st.Storyboard)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		})
	},
}
