package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"aeminvert/internal/aem"
	"aeminvert/pkg/aeminvert"
)

func likelihoodCmd(g *globals) *cobra.Command {
	req := aeminvert.DefaultLikelihoodRequest()
	cmd := &cobra.Command{
		Use:   "likelihood",
		Short: "Evaluate the likelihood of one model or image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.client.Likelihood(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nll %.9g\nlognorm %.9g\n", res.NLL, res.LogNorm)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&req.Input, "input", "i", "", "Observations file")
	fl.StringArrayVarP(&req.Systems, "stm", "s", nil, "Forward system file (repeatable)")
	fl.StringArrayVarP(&req.Hierarchical, "hierarchical", "H", nil, "Noise model file, one per system (repeatable)")
	fl.StringVarP(&req.Model, "model", "M", "", "Saved wavelet tree")
	fl.StringVar(&req.Image, "image", "", "Linear conductivity image")
	fl.Float64VarP(&req.Depth, "depth", "d", req.Depth, "Depth of the section in metres (models only)")
	fl.StringVar(&req.WaveletVertical, "wavelet-vertical", req.WaveletVertical, "Vertical wavelet")
	fl.StringVar(&req.WaveletHorizontal, "wavelet-horizontal", req.WaveletHorizontal, "Horizontal wavelet")
	fl.Float64VarP(&req.Lambda, "lambda", "l", req.Lambda, "Noise scale")
	fl.StringVarP(&req.Residuals, "residuals", "r", "", "Write the residual vector to this file")
	return cmd
}

func syntheticCmd(g *globals) *cobra.Command {
	req := aeminvert.DefaultSyntheticRequest()
	geometry := []float64{req.Geometry.TxHeight, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	cmd := &cobra.Command{
		Use:   "synthetic",
		Short: "Forward model an image into an observations file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(geometry) != 10 {
				return fmt.Errorf("geometry needs 10 values, got %d", len(geometry))
			}
			req.Geometry = aem.Geometry{
				TxHeight: geometry[0], TxRoll: geometry[1], TxPitch: geometry[2], TxYaw: geometry[3],
				TxRxDX: geometry[4], TxRxDY: geometry[5], TxRxDZ: geometry[6],
				RxRoll: geometry[7], RxPitch: geometry[8], RxYaw: geometry[9],
			}
			s, err := g.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()

			obs, err := s.client.Synthesize(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d points to %s\n", len(obs.Points), req.Output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&req.Image, "image", "", "Linear conductivity image")
	fl.StringArrayVarP(&req.Systems, "stm", "s", nil, "Forward system file (repeatable)")
	fl.StringArrayVarP(&req.Noise, "noise", "n", nil, "Noise model to draw from, one per system (repeatable)")
	fl.Float64SliceVar(&geometry, "geometry", geometry, "Tx height, roll, pitch, yaw, Tx-Rx dx, dy, dz, Rx roll, pitch, yaw")
	fl.StringVar(&req.Direction, "direction", req.Direction, "Response component (X, Y or Z)")
	fl.Float64VarP(&req.Lambda, "lambda", "l", req.Lambda, "Noise scale")
	fl.IntVarP(&req.Seed, "seed", "S", req.Seed, "Random seed")
	fl.StringVarP(&req.Output, "output", "o", "", "Observations file to write")
	return cmd
}

func runsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.client.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tCHAINS\tITERATIONS\tINPUT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					r.ID, humanize.Time(r.CreatedAt), len(r.Chains), humanize.Comma(int64(r.Request.Total)), r.Request.Input)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list; 0 lists all")
	return cmd
}
