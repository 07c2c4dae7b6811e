// Command genmock writes synthetic per-night S/N logs sampled from the
// throughput model, so the plot and validate paths can be exercised without
// the engineering archive mount.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -perdiems data/mock/perdiem \
//	  -instruments nres01,nres02 \
//	  -dates 20171128,20171129
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/lcogt/nres-sn/internal/adapter/perdiem"
	"github.com/lcogt/nres-sn/internal/config"
	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
)

var exposures = []int{60, 120, 300, 600, 900, 1200}

// options controls how a night is sampled.
type options struct {
	perNight   int
	unresolved float64
	scatter    float64
	refflux    float64
	ron        float64
	seed       uint64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	perdiems := flag.String("perdiems", "", "output directory for per-night logs")
	instruments := flag.String("instruments", "nres01,nres02", "comma-separated instrument codes")
	dates := flag.String("dates", "", "comma-separated nights as YYYYMMDD")
	var opts options
	flag.IntVar(&opts.perNight, "per-night", 25, "observations per night")
	flag.Float64Var(&opts.unresolved, "unresolved", 0.05, "fraction of targets with no catalog magnitude")
	flag.Float64Var(&opts.scatter, "scatter", 0.15, "log-normal throughput scatter")
	flag.Float64Var(&opts.refflux, "refflux", 180000, "reference flux for instruments without a configured curve")
	flag.Float64Var(&opts.ron, "ron", 0, "read-out noise")
	flag.Uint64Var(&opts.seed, "seed", 1, "random seed")
	flag.Parse()

	if *perdiems == "" || *dates == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -perdiems, -dates")
	}

	cfg := config.Default()
	cfg.PerdiemDir = *perdiems
	cfg.Instruments = splitList(*instruments)
	cfg.Dates = splitList(*dates)
	cfg.RON = opts.ron
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger("info", "text", os.Stderr)
	writer := perdiem.NewWriter(false, logger)
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	total := 0
	for _, night := range cfg.Nights() {
		obs := sampleNight(rng, night, referenceFlux(cfg.ResolvedCurves(), night, opts.refflux), opts)
		path := perdiem.Path(cfg.PerdiemDir, night)
		if err := writer.Write(path, obs); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		logger.Info("wrote mock log", "night", night.String(), "path", path, "records", len(obs))
		total += len(obs)
	}
	logger.Info("done", "records", total)
	return nil
}

// referenceFlux picks the configured curve labelled "<site> <instrument>",
// falling back to def.
func referenceFlux(curves []domain.Curve, night domain.Night, def float64) float64 {
	label := night.Site + " " + night.Instrument
	for _, c := range curves {
		if c.Label == label {
			return c.RefFlux
		}
	}
	return def
}

// sampleNight draws observations whose S/N follows the model at a random
// magnitude and exposure, scaled by a log-normal throughput factor.
func sampleNight(rng *rand.Rand, night domain.Night, refflux float64, opts options) []domain.Observation {
	obs := make([]domain.Observation, 0, opts.perNight)
	for i := range opts.perNight {
		vmag := 2 + 10*rng.Float64()
		texp := exposures[rng.IntN(len(exposures))]
		flux := refflux * math.Exp(opts.scatter*rng.NormFloat64()) * float64(texp) / 60
		signal := flux * math.Pow(10, -0.4*vmag)
		sn := signal / math.Sqrt(signal+3*opts.ron*opts.ron)

		report := domain.Report{
			Name:            fmt.Sprintf("HD%06d", rng.IntN(1000000)),
			ExposureSeconds: texp,
			SN:              math.Round(sn*10) / 10,
		}
		mag := domain.ResolvedMagnitude(math.Round(vmag*100) / 100)
		if rng.Float64() < opts.unresolved {
			mag = domain.UnresolvedMagnitude()
		}
		o := domain.NewObservation(report, mag)
		o.Archive = fmt.Sprintf("%s%s-mock-%s-%04d-e91.tar.gz", night.Site, night.Instrument, night.Date, i+1)
		obs = append(obs, o)
	}
	return obs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
