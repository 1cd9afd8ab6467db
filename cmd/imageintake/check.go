package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/widget"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Checks local files against the upload rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			var list []*intake.ImageRecord
			controller := widget.NewController(opts, widget.Handlers{
				OnChange: func(l []*intake.ImageRecord, _ []int) {
					list = l
				},
			}, widget.WithLogger(loggerFrom(cmd.Context())))

			out := cmd.OutOrStdout()
			if err := controller.HandleFiles(cmd.Context(), intake.LocalFiles(args)); err != nil {
				var rejection *intake.RejectionError
				if errors.As(err, &rejection) {
					printFailures(out, rejection.Result, args)
				}
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(list)
			}
			printRecords(out, list)
			return nil
		},
	}
	addRuleFlags(checkCmd)
	checkCmd.Flags().Bool("json", false, "Print accepted records as JSON including encoded content")
	return checkCmd
}

func printRecords(out io.Writer, list []*intake.ImageRecord) {
	for _, record := range list {
		dimensions := "-"
		if record.Dimensions != nil {
			dimensions = fmt.Sprintf("%dx%d", record.Dimensions.Width, record.Dimensions.Height)
		}
		fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\n",
			record.Name(), record.ContentType, record.ByteSize, dimensions, record.ID)
	}
}

func printFailures(out io.Writer, result intake.ValidationResult, names []string) {
	fmt.Fprintln(out, "rejected:")
	for _, failure := range result.Failures {
		fmt.Fprintf(out, "  %s: %s\n", failure.Rule, failure.Message)
		for _, i := range failure.Files {
			if i >= 0 && i < len(names) {
				fmt.Fprintf(out, "    - %s\n", names[i])
			}
		}
	}
}
