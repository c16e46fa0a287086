package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aeminvert/pkg/aeminvert"
)

type invertFlags struct {
	config string
	req    aeminvert.InvertRequest
}

// overrides copies one flag's value onto a request loaded from --config.
var overrides = map[string]func(dst, src *aeminvert.InvertRequest){
	"input":                func(d, s *aeminvert.InvertRequest) { d.Input = s.Input },
	"stm":                  func(d, s *aeminvert.InvertRequest) { d.Systems = s.Systems },
	"hierarchical":         func(d, s *aeminvert.InvertRequest) { d.Hierarchical = s.Hierarchical },
	"prior-file":           func(d, s *aeminvert.InvertRequest) { d.PriorFile = s.PriorFile },
	"initial":              func(d, s *aeminvert.InvertRequest) { d.Initial = s.Initial },
	"output":               func(d, s *aeminvert.InvertRequest) { d.Output = s.Output },
	"degree-depth":         func(d, s *aeminvert.InvertRequest) { d.DegreeDepth = s.DegreeDepth },
	"degree-lateral":       func(d, s *aeminvert.InvertRequest) { d.DegreeLateral = s.DegreeLateral },
	"depth":                func(d, s *aeminvert.InvertRequest) { d.Depth = s.Depth },
	"total":                func(d, s *aeminvert.InvertRequest) { d.Total = s.Total },
	"seed":                 func(d, s *aeminvert.InvertRequest) { d.Seed = s.Seed },
	"seed-multiplier":      func(d, s *aeminvert.InvertRequest) { d.SeedMultiplier = s.SeedMultiplier },
	"kmax":                 func(d, s *aeminvert.InvertRequest) { d.Kmax = s.Kmax },
	"birth-probability":    func(d, s *aeminvert.InvertRequest) { d.BirthProbability = s.BirthProbability },
	"posteriork":           func(d, s *aeminvert.InvertRequest) { d.PosteriorK = s.PosteriorK },
	"wavelet-vertical":     func(d, s *aeminvert.InvertRequest) { d.WaveletVertical = s.WaveletVertical },
	"wavelet-horizontal":   func(d, s *aeminvert.InvertRequest) { d.WaveletHorizontal = s.WaveletHorizontal },
	"lambda-std":           func(d, s *aeminvert.InvertRequest) { d.LambdaStd = s.LambdaStd },
	"prior-std":            func(d, s *aeminvert.InvertRequest) { d.PriorStd = s.PriorStd },
	"verbosity":            func(d, s *aeminvert.InvertRequest) { d.Verbosity = s.Verbosity },
	"processes":            func(d, s *aeminvert.InvertRequest) { d.Processes = s.Processes },
	"chains":               func(d, s *aeminvert.InvertRequest) { d.Chains = s.Chains },
	"temperatures":         func(d, s *aeminvert.InvertRequest) { d.Temperatures = s.Temperatures },
	"max-temperature":      func(d, s *aeminvert.InvertRequest) { d.MaxTemperature = s.MaxTemperature },
	"exchange-rate":        func(d, s *aeminvert.InvertRequest) { d.ExchangeRate = s.ExchangeRate },
	"resample":             func(d, s *aeminvert.InvertRequest) { d.Resample = s.Resample },
	"resample-temperature": func(d, s *aeminvert.InvertRequest) { d.ResampleTemperature = s.ResampleTemperature },
	"resample-rate":        func(d, s *aeminvert.InvertRequest) { d.ResampleRate = s.ResampleRate },
	"history-size":         func(d, s *aeminvert.InvertRequest) { d.HistorySize = s.HistorySize },
}

func invertCmd(g *globals) *cobra.Command {
	f := &invertFlags{req: aeminvert.DefaultInvertRequest()}
	cmd := &cobra.Command{
		Use:   "invert",
		Short: "Run the reversible-jump sampler over a survey line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			s, err := g.open(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.client.Invert(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printInvertSummary(cmd.OutOrStdout(), out)
		},
	}

	r := &f.req
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML file of defaults; flags set explicitly override it")
	fl.StringVarP(&r.Input, "input", "i", r.Input, "Observations file")
	fl.StringArrayVarP(&r.Systems, "stm", "s", r.Systems, "Forward system file (repeatable)")
	fl.StringArrayVarP(&r.Hierarchical, "hierarchical", "H", r.Hierarchical, "Noise model file, one per system (repeatable)")
	fl.StringVarP(&r.PriorFile, "prior-file", "P", r.PriorFile, "Prior file; the built-in prior when empty")
	fl.StringVarP(&r.Initial, "initial", "I", r.Initial, "Prefix of a previous run whose final models seed the chains")
	fl.StringVarP(&r.Output, "output", "o", r.Output, "Output file prefix")
	fl.IntVarP(&r.DegreeDepth, "degree-depth", "y", r.DegreeDepth, "Image rows are 2^degree-depth")
	fl.IntVarP(&r.DegreeLateral, "degree-lateral", "x", r.DegreeLateral, "Image columns are 2^degree-lateral")
	fl.Float64VarP(&r.Depth, "depth", "d", r.Depth, "Depth of the section in metres")
	fl.IntVarP(&r.Total, "total", "t", r.Total, "Iterations per chain")
	fl.IntVarP(&r.Seed, "seed", "S", r.Seed, "Random seed")
	fl.IntVar(&r.SeedMultiplier, "seed-multiplier", r.SeedMultiplier, "Per-rank seed multiplier")
	fl.IntVarP(&r.Kmax, "kmax", "k", r.Kmax, "Maximum number of coefficients")
	fl.Float64VarP(&r.BirthProbability, "birth-probability", "B", r.BirthProbability, "Birth (and death) proposal probability")
	fl.BoolVar(&r.PosteriorK, "posteriork", r.PosteriorK, "Sample the prior on k only")
	fl.StringVar(&r.WaveletVertical, "wavelet-vertical", r.WaveletVertical, "Vertical wavelet (haar, daub4, daub6, daub8, cdf97, cdf97-periodic)")
	fl.StringVar(&r.WaveletHorizontal, "wavelet-horizontal", r.WaveletHorizontal, "Horizontal wavelet")
	fl.Float64VarP(&r.LambdaStd, "lambda-std", "L", r.LambdaStd, "Noise scale proposal std; 0 disables the hierarchical noise step")
	fl.Float64Var(&r.PriorStd, "prior-std", r.PriorStd, "Prior scale proposal std; 0 disables the hierarchical prior step")
	fl.IntVarP(&r.Verbosity, "verbosity", "v", r.Verbosity, "Log a status line every n iterations; 0 disables")
	fl.IntVar(&r.Processes, "processes", r.Processes, "Ranks to run")
	fl.IntVarP(&r.Chains, "chains", "c", r.Chains, "Chains per temperature")
	fl.IntVarP(&r.Temperatures, "temperatures", "T", r.Temperatures, "Number of temperatures")
	fl.Float64VarP(&r.MaxTemperature, "max-temperature", "m", r.MaxTemperature, "Hottest temperature of the ladder")
	fl.IntVarP(&r.ExchangeRate, "exchange-rate", "e", r.ExchangeRate, "Iterations between exchanges; 0 disables")
	fl.BoolVarP(&r.Resample, "resample", "R", r.Resample, "Enable resampling: once at start with --initial, then every --resample-rate iterations")
	fl.Float64Var(&r.ResampleTemperature, "resample-temperature", r.ResampleTemperature, "Temperature of the resampling weights, at least 1")
	fl.IntVar(&r.ResampleRate, "resample-rate", r.ResampleRate, "Iterations between resamples with --resample; 0 disables")
	fl.IntVar(&r.HistorySize, "history-size", r.HistorySize, "Chain history block size in steps; 0 uses the default")
	return cmd
}

// resolve layers explicitly set flags over the --config file, which itself
// sits over the defaults.
func (f *invertFlags) resolve(cmd *cobra.Command) (aeminvert.InvertRequest, error) {
	if f.config == "" {
		return f.req, nil
	}
	req, err := aeminvert.LoadInvertRequest(f.config, aeminvert.DefaultInvertRequest())
	if err != nil {
		return aeminvert.InvertRequest{}, err
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply(&req, &f.req)
		}
	}
	return req, nil
}

func printInvertSummary(w io.Writer, out aeminvert.InvertSummary) error {
	fmt.Fprintf(w, "run %s\nsummary %s\n", out.RunID, out.Summary)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tTEMPERATURE\tNLL\tK\tMEAN K")
	for _, c := range out.Chains {
		fmt.Fprintf(tw, "%d\t%.4g\t%.6g\t%d\t%.2f\n", c.Chain, c.Temperature, c.Likelihood, c.Coefficients, c.MeanK)
	}
	return tw.Flush()
}
