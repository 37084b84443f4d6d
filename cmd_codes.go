package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"obd2ai/common"
)

var codesSkipAssessment bool

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Read stored, pending and permanent trouble codes and assess them",
	RunE:  runCodes,
}

func init() {
	codesCmd.Flags().BoolVar(&codesSkipAssessment, "no-assess", false, "only list the codes")
}

func runCodes(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session, peer, err := env.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	codes, err := session.AllTroubleCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read trouble codes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(codes) == 0 {
		fmt.Fprintln(out, "No trouble codes found")
		return nil
	}
	fmt.Fprintf(out, "Found %d trouble code(s): %s\n", len(codes), strings.Join(codes, ", "))

	if codesSkipAssessment {
		return nil
	}

	a := env.newAssessor()
	if a == nil {
		return nil
	}
	defer a.Close()

	records, err := a.AssessAll(ctx, codes)
	if err != nil {
		return fmt.Errorf("assessment failed: %w", err)
	}

	printReport(out, common.NewScanReport(deviceID(peer), codes, records))
	return nil
}

// printReport печатает оценки по убыванию тяжести
func printReport(w io.Writer, report common.ScanReport) {
	fmt.Fprintf(w, "\nSeverity: %d high, %d medium, %d low\n",
		report.Counts.High, report.Counts.Medium, report.Counts.Low)

	for _, r := range report.Records {
		fmt.Fprintf(w, "\n[%s] %s - %s\n", strings.ToUpper(r.Severity.String()), r.ErrorCode, r.Title)
		if r.Detail != "" {
			fmt.Fprintf(w, "    %s\n", r.Detail)
		}
		if r.Implications != "" {
			fmt.Fprintf(w, "    Implications: %s\n", r.Implications)
		}
		if len(r.SuggestedActions) > 0 {
			fmt.Fprintln(w, "    Suggested actions:")
			for _, action := range r.SuggestedActions {
				fmt.Fprintf(w, "      - %s\n", action)
			}
		}
	}

	if report.Error != "" {
		fmt.Fprintf(w, "\nAssessment incomplete: %s\n", report.Error)
	}
}
