package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeflow/forgeflow/internal/approval"
	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/optimizer"
)

var optimizeApply bool

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Analyze run history and recommend threshold changes",
	Long: `Analyze the completed-project history and recommend threshold
adjustments with a graded confidence.

Recommendations are advisory. With --apply, each one is offered for
explicit approval and, if approved, written to the config file; nothing
is ever applied automatically.`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().BoolVar(&optimizeApply, "apply", false, "Offer approved recommendations for application")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}
	defer d.logger.Close()

	records, err := d.history.Load()
	if err != nil {
		return err
	}

	analysis := optimizer.New(d.cfg, d.logger).Analyze(records)
	fmt.Println(optimizer.Render(analysis))

	if !optimizeApply {
		return nil
	}
	if analysis.Status == optimizer.StatusInsufficientSample {
		return errors.Wrapf(errors.ErrInsufficientSample,
			"%d records, need %d", len(records), d.cfg.Optimizer.MinSampleSize)
	}
	if len(analysis.Recommendations) == 0 {
		return nil
	}

	configFile := config.ConfigFile()
	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		configFile = f.Value.String()
	}
	if _, err := os.Stat(configFile); err != nil {
		return fmt.Errorf("config file %s not found; create it before applying recommendations", configFile)
	}

	gate := d.gate()
	for _, rec := range analysis.Recommendations {
		decision, err := gate.Request(cmd.Context(), approval.Request{
			Kind:  approval.KindThresholdApply,
			Title: fmt.Sprintf("Apply %s: %v to %v?", rec.ParameterName, rec.OldValue, rec.NewValue),
			Detail: fmt.Sprintf("%s\nConfidence: %s (n=%d)",
				rec.Reasoning, rec.Confidence, rec.SampleSize),
			Options: []approval.Option{
				{ID: "apply", Label: "Apply to " + configFile},
				{ID: "skip", Label: "Skip"},
			},
		})
		if err != nil {
			return err
		}
		if decision != "apply" {
			continue
		}
		if err := config.ApplyOverride(configFile, rec.ParameterName, rec.NewValue); err != nil {
			return err
		}
		fmt.Printf("Applied %s = %v\n", rec.ParameterName, rec.NewValue)
	}
	return nil
}
