// Package domain models NRES pipeline S/N measurements and the photon
// throughput model they are compared against.
//
// # Data Source
//
// The NRES reduction pipeline archives every processed exposure as a
// tarball under the engineering mount:
//
//	{mount}/{site}/{instrument}/{date}/specproc/{basename}.tar.gz
//
// Each tarball carries a one-page PDF summary report named after the
// tarball, either at the root ({basename}.pdf) or inside a directory of the
// same name ({basename}/{basename}.pdf). Dates are UTC start-of-night in
// YYYYMMDD form.
//
// # Report Template
//
// The first line of the report text begins with the target name followed by
// comma-separated acquisition details:
//
//	"HD 12345, RV= 12.3 km/s, expt=900 s, ... S/N= 102.31, ..."
//
// Only the name (leading run of word characters, spaces, '+' and '-'), the
// integer exposure time in seconds and the decimal S/N are used. See
// [ParseReport].
//
// Target names carry an optional suffix after the first underscore
// ("HD12345_ENGR") that qualifies the observation but is not part of the
// catalog identifier. Engineering observations end in "_ENGR".
//
// # Magnitudes
//
// V magnitudes are looked up in the SIMBAD catalog. Local shorthand names
// are mapped to SIMBAD identifiers through a translation table before the
// query (see [DefaultTranslations]). A failed lookup yields an unresolved
// [Magnitude], which is written to per-night logs as NaN so readers drop it
// from plots without losing the record.
//
// # Throughput Model
//
// S/N for a 60 second exposure is modeled per resolution element at 5100 Å
// as photon noise plus read noise over three pixels:
//
//	signal = refflux · 10^(-0.4·V)
//	S/N    = signal / sqrt(signal + 3·ron²)
//
// Measured S/N is scaled to the 60 second baseline by sqrt(60 / texp).
package domain
