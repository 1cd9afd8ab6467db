package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jo-hoe/imageintake/internal/core"
	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/logging"
	"github.com/jo-hoe/imageintake/internal/widget"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imageintake",
		Short: "Check images against upload rules and send them to a receiver",
		Long: strings.TrimSpace(`
Reads local image files the way the uploader widget does: each file is encoded,
measured and checked against count, size, type and resolution rules before it
is accepted. Accepted files can be sent to an upload endpoint.
    `),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, format)
			cmd.SetContext(withLogger(cmd.Context(), logger))
		},
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")

	rootCmd.AddCommand(newCheckCmd(), newUploadCmd())
	return rootCmd
}

// addRuleFlags registers the validation rule flags shared by all commands.
func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-number", widget.DefaultMaxNumber, "Maximum number of images in the list")
	cmd.Flags().Int64("max-file-size", 0, "Maximum size per file in bytes, 0 for unlimited")
	cmd.Flags().StringSlice("accept", nil, "Accepted file extensions, empty for any image type")
	cmd.Flags().String("resolution-type", "none", "Resolution rule (none, minimum, maximum, absolute, ratio)")
	cmd.Flags().Int("resolution-width", 0, "Width threshold of the resolution rule")
	cmd.Flags().Int("resolution-height", 0, "Height threshold of the resolution rule")
	cmd.Flags().String("data-url-key", intake.DefaultDataURLKey, "JSON key holding the encoded content")
	cmd.Flags().Bool("single", false, "Keep only the first file instead of the whole batch")
	cmd.Flags().StringP("config", "c", "", "Server config file whose uploader section provides the defaults")
}

// optionsFromFlags starts from the uploader section of --config, if given,
// and applies every rule flag set on the command line.
func optionsFromFlags(cmd *cobra.Command) (widget.Options, error) {
	flags := cmd.Flags()
	opts := widget.Options{
		MaxNumber:  widget.DefaultMaxNumber,
		Multiple:   true,
		DataURLKey: intake.DefaultDataURLKey,
	}
	if configPath, _ := flags.GetString("config"); configPath != "" {
		config, err := core.LoadConfig(configPath)
		if err != nil {
			return widget.Options{}, err
		}
		opts = config.Uploader.WidgetOptions()
	}

	if flags.Changed("max-number") {
		opts.MaxNumber, _ = flags.GetInt("max-number")
	}
	if flags.Changed("max-file-size") {
		opts.MaxFileSize, _ = flags.GetInt64("max-file-size")
		if opts.MaxFileSize < 0 {
			return widget.Options{}, fmt.Errorf("--max-file-size must not be negative")
		}
	}
	if flags.Changed("accept") {
		opts.AcceptType, _ = flags.GetStringSlice("accept")
	}
	if flags.Changed("resolution-type") {
		resolutionType, _ := flags.GetString("resolution-type")
		mode, err := intake.ParseResolutionMode(resolutionType)
		if err != nil {
			return widget.Options{}, err
		}
		opts.Resolution.Mode = mode
	}
	if flags.Changed("resolution-width") {
		opts.Resolution.Width, _ = flags.GetInt("resolution-width")
	}
	if flags.Changed("resolution-height") {
		opts.Resolution.Height, _ = flags.GetInt("resolution-height")
	}
	if flags.Changed("data-url-key") {
		opts.DataURLKey, _ = flags.GetString("data-url-key")
	}
	if flags.Changed("single") {
		single, _ := flags.GetBool("single")
		opts.Multiple = !single
	}
	return opts, nil
}
