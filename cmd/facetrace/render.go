package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/facetrace-ai/facetrace/pkg/config"
	"github.com/facetrace-ai/facetrace/pkg/fingerprint"
	"github.com/facetrace-ai/facetrace/pkg/models"
	"github.com/facetrace-ai/facetrace/pkg/render"
	"github.com/facetrace-ai/facetrace/pkg/resolver"
)

func newRenderCmd() *cobra.Command {
	var (
		configPath    string
		imagePath     string
		landmarksPath string
		outPath       string
		showLabels    bool
		smooth        bool
		opacity       float64
		strokeWidth   float64
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one overlay through the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			img, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			lmData, err := os.ReadFile(landmarksPath)
			if err != nil {
				return fmt.Errorf("read landmarks: %w", err)
			}
			var landmarks []models.Landmark
			if err := json.Unmarshal(lmData, &landmarks); err != nil {
				return fmt.Errorf("parse landmarks: %w", err)
			}

			req := &models.RenderRequest{
				Image:       img,
				Landmarks:   landmarks,
				ShowLabels:  showLabels,
				Smooth:      smooth,
				Opacity:     opacity,
				StrokeWidth: strokeWidth,
			}
			req.Normalize(cfg.Render.DefaultOpacity, cfg.Render.DefaultStrokeWidth)
			if err := req.Validate(); err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = store.Close() }()

			res := resolver.New(
				fingerprint.New(cfg.Cache.PerceptualGridSize),
				store,
				render.New(),
				nil,
				resolver.Options{
					TTLSuccess:          cfg.Cache.TTLSuccess,
					TTLFailure:          cfg.Cache.TTLFailure,
					SimilarityThreshold: cfg.Cache.SimilarityThreshold,
				},
			)

			resolution, err := res.Resolve(context.Background(), req)
			if err != nil {
				if resolution != nil && resolution.Cached {
					return fmt.Errorf("render failed (replayed from cache): %w", err)
				}
				return err
			}

			if err := os.WriteFile(outPath, resolution.Payload.Artifact, 0644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}

			fmt.Printf("Outcome:  %s\n", resolution.Outcome)
			if resolution.Distance >= 0 {
				fmt.Printf("Distance: %d bits\n", resolution.Distance)
			}
			fmt.Printf("Artifact: %s (%s)\n", outPath, humanize.Bytes(uint64(len(resolution.Payload.Artifact))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the source image")
	cmd.Flags().StringVar(&landmarksPath, "landmarks", "", "path to a JSON file with 478 landmarks")
	cmd.Flags().StringVarP(&outPath, "out", "o", "overlay.svg", "output path for the SVG artifact")
	cmd.Flags().BoolVar(&showLabels, "show-labels", false, "number the rendered regions")
	cmd.Flags().BoolVar(&smooth, "smooth", false, "draw region outlines as smooth curves")
	cmd.Flags().Float64Var(&opacity, "opacity", 0, "fill opacity (default from config)")
	cmd.Flags().Float64Var(&strokeWidth, "stroke-width", 0, "outline stroke width")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("landmarks")
	return cmd
}
