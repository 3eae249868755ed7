package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/classifier"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "soilctl",
		Short:        "Soil texture classification tools",
		SilenceUsage: true,
	}
	root.AddCommand(newClassifyCmd(), newRulesCmd(), newAnalyzeCmd())
	return root
}

func newClassifyCmd() *cobra.Command {
	var (
		sand, silt, clay float64
		remote           string
		asJSON           bool
		timeout          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a sand/silt/clay triple",
		Example: `  soilctl classify --sand 30 --silt 35 --clay 35
  soilctl classify --sand 60 --silt 30 --clay 30 --remote localhost:50061 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp := soiltexture.Composition{Sand: sand, Silt: silt, Clay: clay}
			res := soiltexture.Analyze(comp)
			if remote != "" {
				c, err := classifier.Dial(remote)
				if err != nil {
					return err
				}
				defer c.Close()
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if res, err = c.Classify(ctx, comp); err != nil {
					return fmt.Errorf("remote classify: %w", err)
				}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&sand, "sand", 0, "sand percentage")
	f.Float64Var(&silt, "silt", 0, "silt percentage")
	f.Float64Var(&clay, "clay", 0, "clay percentage")
	f.StringVar(&remote, "remote", "", "TextureClassifier gRPC address (host:port); classify locally when empty")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "remote call timeout")
	for _, name := range []string{"sand", "silt", "clay"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the classification cascade in evaluation order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for i, r := range soiltexture.Rules() {
				fmt.Fprintf(out, "%2d  %-16s %s\n", i+1, r.Label, r.Condition)
			}
			fmt.Fprintf(out, " -  %-16s no rule matches\n", soiltexture.Loam)
			fmt.Fprintf(out, " -  %-16s all fractions zero\n", soiltexture.Unclassified)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		lat, lon float64
		baseURL  string
		depth    string
		asJSON   bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch the surveyed soil at a point from SoilGrids and classify it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := soil.NewClient(soil.ClientConfig{BaseURL: baseURL, Depth: depth})
			props, err := client.Fetch(ctx, entities.Location{Latitude: lat, Longitude: lon})
			if err != nil {
				return err
			}
			res := soiltexture.Analyze(props.Composition)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Properties entities.SoilProperties `json:"properties"`
					Texture    soiltexture.Result      `json:"texture"`
				}{props, res})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "location  %.4f, %.4f (depth %s)\n", lat, lon, props.Depth)
			if props.PH != nil {
				fmt.Fprintf(out, "pH        %.1f\n", *props.PH)
			}
			if props.OrganicCarbon != nil {
				fmt.Fprintf(out, "SOC       %.1f g/kg\n", *props.OrganicCarbon)
			}
			printResult(out, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&lat, "lat", 0, "latitude")
	f.Float64Var(&lon, "lon", 0, "longitude")
	f.StringVar(&baseURL, "soilgrids-url", soil.DefaultBaseURL, "SoilGrids properties endpoint")
	f.StringVar(&depth, "depth", soil.DefaultDepth, "SoilGrids depth interval")
	f.BoolVar(&asJSON, "json", false, "print properties and result as JSON")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func printResult(out io.Writer, res soiltexture.Result) {
	fmt.Fprintf(out, "texture   %s", res.Label)
	if res.Rule > 0 {
		fmt.Fprintf(out, " (rule %d)", res.Rule)
	}
	fmt.Fprintln(out)
	if res.Rescaled {
		n := res.Normalized
		fmt.Fprintf(out, "rescaled  sand %.1f%%  silt %.1f%%  clay %.1f%%\n", n.Sand, n.Silt, n.Clay)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
