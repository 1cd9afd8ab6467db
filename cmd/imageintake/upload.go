package main

import (
	"errors"
	"fmt"

	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/upload"
	"github.com/jo-hoe/imageintake/internal/widget"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	uploadCmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Checks local files and sends the accepted ones to an upload endpoint",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("url") || opts.UploadURL == "" {
				opts.UploadURL, _ = cmd.Flags().GetString("url")
			}
			if cmd.Flags().Changed("field-name") || opts.FieldName == "" {
				opts.FieldName, _ = cmd.Flags().GetString("field-name")
			}
			if cmd.Flags().Changed("header") {
				opts.Headers, _ = cmd.Flags().GetStringToString("header")
			}
			if opts.UploadURL == "" {
				return fmt.Errorf("an upload URL is required, set --url or uploader.uploadURL")
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			var response *upload.Response
			var uploadErr error
			controller := widget.NewController(opts, widget.Handlers{
				OnProgress: func(p upload.Progress) {
					fmt.Fprintf(errOut, "progress: %d/%d bytes (%.0f%%)\n", p.Loaded, p.Total, p.Percent())
				},
				OnSuccess: func(r *upload.Response) {
					response = r
				},
				OnError: func(err error, batch []*intake.ImageRecord) {
					if batch == nil {
						uploadErr = err
					}
				},
			}, widget.WithLogger(loggerFrom(cmd.Context())))

			if err := controller.HandleFiles(cmd.Context(), intake.LocalFiles(args)); err != nil {
				var rejection *intake.RejectionError
				if errors.As(err, &rejection) {
					printFailures(out, rejection.Result, args)
				}
				return err
			}

			done, err := controller.Upload(cmd.Context())
			if err != nil {
				return err
			}
			<-done
			if uploadErr != nil {
				return uploadErr
			}

			fmt.Fprintf(out, "uploaded %d files: status %d\n", len(controller.Images()), response.StatusCode)
			if len(response.Body) > 0 {
				fmt.Fprintln(out, string(response.Body))
			}
			return nil
		},
	}
	addRuleFlags(uploadCmd)
	uploadCmd.Flags().String("url", "", "Upload endpoint receiving the files as multipart form")
	uploadCmd.Flags().String("field-name", upload.DefaultFieldName, "Multipart field name of each file")
	uploadCmd.Flags().StringToString("header", nil, "Extra request header as key=value, repeatable")
	return uploadCmd
}
