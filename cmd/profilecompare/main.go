package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
	"profilecompare/pkg/comparison"
	"profilecompare/pkg/config"
	"profilecompare/pkg/dose"
	"profilecompare/pkg/parser"
	"profilecompare/pkg/visualization"
)

// parseOrigin reads an "x,y,z" triple in mm
func parseOrigin(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("origin must be x,y,z, got %q", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("invalid origin component %q: %w", part, err)
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func main() {
	// Parse command line arguments
	measuredFile := flag.String("measured", "", "Measured profile (.snctxt water tank or .txt detector array export)")
	calculatedFile := flag.String("calculated", "", "Calculated dose profile sampled along the measurement")
	axisName := flag.String("axis", "Y", "Detector array axis: X, Y, PD or ND")
	configPath := flag.String("config", "profilecompare.yaml", "Configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	percent := flag.Float64("percent", 0, "Dose difference criterion in percent")
	dta := flag.Float64("dta", 0, "Distance to agreement in mm")
	threshold := flag.Float64("threshold", 0, "Low dose threshold in percent")
	sigma := flag.Float64("sigma", 0, "Detector response Gaussian sigma in mm (0 disables convolution)")
	truncation := flag.Float64("trunc", 0, "Convolution truncation distance in mm")
	normalizeFlag := flag.Bool("normalize", true, "Normalize the calculated profile to the measurement")
	energy := flag.String("energy", "6X", "Energy mode of the plan, e.g. 6X, 10X-FFF or 9E")
	calcModel := flag.Bool("calc-model", true, "Plan has a photon calculation model")
	originFlag := flag.String("origin", "0,0,0", "User origin in dose coordinates as x,y,z in mm")
	plotFile := flag.String("plot", "", "Write the comparison plot to this image file")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from configuration)")
	verbose := flag.Bool("verbose", true, "Log each processing step")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *measuredFile == "" || *calculatedFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicit flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "percent":
			cfg.Criteria.Percent = *percent
		case "dta":
			cfg.Criteria.DTA = *dta
		case "threshold":
			cfg.Criteria.Threshold = *threshold
		case "sigma":
			cfg.Criteria.Sigma = *sigma
		case "trunc":
			cfg.Criteria.Truncation = *truncation
		case "normalize":
			cfg.Processing.Normalize = *normalizeFlag
		case "plot":
			cfg.Output.PlotFile = *plotFile
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	axis, err := parser.ParseAxisName(*axisName)
	if err != nil {
		log.Fatalf("Invalid axis: %v", err)
	}
	origin, err := parseOrigin(*originFlag)
	if err != nil {
		log.Fatalf("Invalid origin: %v", err)
	}

	opts := cfg.ParserOptions()
	measured, err := parser.ParseFile(*measuredFile, axis, opts)
	if err != nil {
		log.Fatalf("Failed to read measured profile: %v", err)
	}
	calculated, err := parser.ParseFile(*calculatedFile, axis, opts)
	if err != nil {
		log.Fatalf("Failed to read calculated profile: %v", err)
	}

	// Initialize comparison parameters
	params := comparison.DefaultParams(cfg.GammaCriteria())
	params.Beam = models.BeamFromPlan(*energy, *calcModel)
	params.Normalize = cfg.Processing.Normalize
	params.ResampleFactor = cfg.Processing.ResampleFactor
	params.EarlyExit = cfg.Processing.EarlyExit
	params.DepthProfileSpan = cfg.Processing.DepthProfileSpan
	params.NormalizeFraction = cfg.Processing.NormalizeFraction
	params.CentralFraction = cfg.Processing.CentralFraction
	params.NumCores = cfg.Processing.NumCores
	params.Verbose = cfg.Output.Verbose

	// Calculated profiles are exported in user coordinates
	mapper := dose.OriginMapper{Origin: origin}
	for i := range calculated {
		calculated[i].Position = mapper.Map(calculated[i].Position, dose.UserFrame, dose.DoseFrame)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	comparator := comparison.NewComparator(params, dose.NewProfileSampler(calculated), mapper)

	startTime := time.Now()
	result, err := comparator.Compare(ctx, measured)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}
	if cfg.Output.Verbose {
		log.Printf("Comparison of %d points completed in %.2f seconds", len(measured), time.Since(startTime).Seconds())
	}

	if err := comparison.WriteReport(os.Stdout, result); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if cfg.Output.PlotFile != "" {
		if err := visualization.SavePlot(result, cfg.Output.PlotFile); err != nil {
			log.Fatalf("Failed to save plot: %v", err)
		}
		fmt.Printf("\nPlot saved to: %s\n", cfg.Output.PlotFile)
	}
}
