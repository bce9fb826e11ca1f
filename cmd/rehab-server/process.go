package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/platform/photoproc"
)

var processTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

func processCmd() *cobra.Command {
	var (
		signature bool
		recordNo  string
		project   string
		at        string
		out       string
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run the photo pipeline on a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			when := time.Now().In(loc)
			if at != "" {
				if when, err = parseProcessTime(at, loc); err != nil {
					return err
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			fonts, err := photoproc.LoadFonts(cfg.WatermarkFontPath)
			if err != nil {
				return err
			}
			proc, err := photoproc.NewProcessor(processorOptions(cfg, loc), fonts, logger)
			if err != nil {
				return err
			}

			var mode photoproc.Mode = photoproc.TimestampMode{Time: when}
			if signature {
				mode = photoproc.SignatureMode{
					MedicalRecordNo: recordNo,
					TreatmentTime:   when,
					ProjectName:     project,
				}
			}

			res, err := proc.Process(cmd.Context(), data, mode)
			if err != nil {
				return err
			}

			if out == "" {
				out = defaultOutputPath(args[0], res.Format)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, %d bytes, caption %q\n",
				out, res.Width, res.Height, res.Format, len(res.Data), res.Caption)
			return nil
		},
	}

	cmd.Flags().BoolVar(&signature, "signature", false, "Treat the file as a patient signature")
	cmd.Flags().StringVar(&recordNo, "record-no", "", "Medical record number for the signature caption")
	cmd.Flags().StringVar(&project, "project", "", "Treatment project name for the signature caption")
	cmd.Flags().StringVar(&at, "time", "", "Caption time (RFC 3339 or \"2006-01-02 15:04\"); defaults to now")
	cmd.Flags().StringVar(&out, "out", "", "Output path; defaults to <file>.processed.<ext>")
	return cmd
}

func parseProcessTime(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range processTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --time %q", v)
}

func defaultOutputPath(in, format string) string {
	ext := ".jpg"
	if format == "png" {
		ext = ".png"
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".processed" + ext
}
