package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
	"github.com/lcogt/nres-sn/internal/pipeline"
)

// --- mocks ---

type mockArchives struct {
	tarballs  map[string][]string // night string -> tarballs
	reports   map[string]string   // tarball -> pdf path handed to the callback
	locateErr error
	openErr   map[string]error
}

func (m *mockArchives) Locate(night domain.Night) ([]string, error) {
	if m.locateErr != nil {
		return nil, m.locateErr
	}
	return m.tarballs[night.String()], nil
}

func (m *mockArchives) WithReport(tarball string, fn func(string) error) error {
	if err := m.openErr[tarball]; err != nil {
		return err
	}
	return fn(m.reports[tarball])
}

type mockExtractor struct {
	texts  map[string]string
	err    error
	onRead func()
}

func (m *mockExtractor) FirstPage(path string) (string, error) {
	if m.onRead != nil {
		m.onRead()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.texts[path], nil
}

type mockCatalog struct {
	mags  map[string]float64
	err   error
	calls []string
}

func (m *mockCatalog) VMagnitude(_ context.Context, name string) (float64, bool, error) {
	m.calls = append(m.calls, name)
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.mags[name]
	return v, ok, nil
}

type writeCall struct {
	path string
	obs  []domain.Observation
}

type mockWriter struct {
	calls []writeCall
	err   error
}

func (m *mockWriter) Write(path string, obs []domain.Observation) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, writeCall{path: path, obs: obs})
	return nil
}

type mockPublisher struct {
	nights []domain.Night
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, night domain.Night, _ []domain.Observation) error {
	m.nights = append(m.nights, night)
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	lscNight = domain.Night{Site: "lsc", Instrument: "nres01", Date: "20171128"}
	elpNight = domain.Night{Site: "elp", Instrument: "nres02", Date: "20180105"}
)

// fixture builds archives for lscNight: one good report, one mismatching report.
func fixture() (*mockArchives, *mockExtractor) {
	archives := &mockArchives{
		tarballs: map[string][]string{
			lscNight.String(): {"/mnt/a.tar.gz", "/mnt/b.tar.gz"},
		},
		reports: map[string]string{
			"/mnt/a.tar.gz": "/tmp/a.pdf",
			"/mnt/b.tar.gz": "/tmp/b.pdf",
		},
	}
	extractor := &mockExtractor{texts: map[string]string{
		"/tmp/a.pdf": "HD12345, expt=60 s, S/N=45.3,",
		"/tmp/b.pdf": "Summary plot unavailable",
	}}
	return archives, extractor
}

func newCrawler(a pipeline.Archives, e pipeline.TextExtractor, c domain.Catalog, w pipeline.LogWriter, p pipeline.Publisher, cfg pipeline.CrawlerConfig, m *observability.Metrics) *pipeline.Crawler {
	return pipeline.NewCrawler(a, e, c, w, p, cfg, discardLogger(), m)
}

// --- crawler ---

func TestCrawler_Crawl_HappyPath(t *testing.T) {
	archives, extractor := fixture()
	catalog := &mockCatalog{mags: map[string]float64{"HD12345": 8.2}}
	writer := &mockWriter{}
	metrics := observability.NewMetrics()

	c := newCrawler(archives, extractor, catalog, writer, nil, pipeline.CrawlerConfig{PerdiemDir: "/data/perdiem"}, metrics)

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Archives)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Unresolved)
	assert.Equal(t, filepath.Join("/data/perdiem", "nres01-20171128.txt"), res.LogPath)

	require.Len(t, writer.calls, 1)
	want := []domain.Observation{{
		Star:            "HD12345",
		Magnitude:       domain.ResolvedMagnitude(8.2),
		SN:              45.3,
		ExposureSeconds: 60,
		Archive:         "a.tar.gz",
	}}
	if diff := cmp.Diff(want, writer.calls[0].obs); diff != "" {
		t.Fatalf("observations mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ArchivesFound), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReportsParsed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReportsSkipped.WithLabelValues("mismatch")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RecordsWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.NightsCrawled), 0)
}

func TestCrawler_Crawl_CatalogFailureKeepsRecord(t *testing.T) {
	archives, extractor := fixture()
	catalog := &mockCatalog{err: errors.New("connection refused")}
	writer := &mockWriter{}

	c := newCrawler(archives, extractor, catalog, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Unresolved)

	require.Len(t, writer.calls, 1)
	require.Len(t, writer.calls[0].obs, 1)
	got := writer.calls[0].obs[0]
	assert.Equal(t, "HD12345", got.Star)
	assert.False(t, got.Magnitude.Resolved)
	assert.False(t, got.Magnitude.IsFinite())
}

func TestCrawler_Crawl_NilCatalog(t *testing.T) {
	archives, extractor := fixture()
	writer := &mockWriter{}

	c := newCrawler(archives, extractor, nil, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unresolved)
}

func TestCrawler_Crawl_TranslatesSearchKey(t *testing.T) {
	archives, extractor := fixture()
	extractor.texts["/tmp/a.pdf"] = "PSIPHE_2, expt=120 s, S/N=300.5,"
	catalog := &mockCatalog{mags: map[string]float64{"psi Phe": 4.41}}
	writer := &mockWriter{}

	c := newCrawler(archives, extractor, catalog, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	_, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, []string{"psi Phe"}, catalog.calls)
	assert.Equal(t, "PSIPHE_2", writer.calls[0].obs[0].Star)
	assert.InDelta(t, 4.41, writer.calls[0].obs[0].Magnitude.Value, 1e-12)
}

func TestCrawler_Crawl_SkipEngineering(t *testing.T) {
	archives, extractor := fixture()
	extractor.texts["/tmp/a.pdf"] = "TEST_ENGR, expt=60 s, S/N=10.0,"
	writer := &mockWriter{}
	metrics := observability.NewMetrics()

	c := newCrawler(archives, extractor, &mockCatalog{}, writer, nil, pipeline.CrawlerConfig{SkipEngineering: true}, metrics)

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Zero(t, res.Records)
	assert.Equal(t, 2, res.Skipped)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReportsSkipped.WithLabelValues("engineering")), 0)
}

func TestCrawler_Crawl_ArchiveErrorSkipped(t *testing.T) {
	archives, extractor := fixture()
	archives.openErr = map[string]error{"/mnt/a.tar.gz": errors.New("unexpected EOF")}
	writer := &mockWriter{}
	metrics := observability.NewMetrics()

	c := newCrawler(archives, extractor, &mockCatalog{}, writer, nil, pipeline.CrawlerConfig{}, metrics)

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Zero(t, res.Records)
	assert.Equal(t, 2, res.Skipped)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReportsSkipped.WithLabelValues("extract")), 0)
}

func TestCrawler_Crawl_ExtractorErrorSkipped(t *testing.T) {
	archives, extractor := fixture()
	extractor.err = errors.New("malformed xref")
	writer := &mockWriter{}

	c := newCrawler(archives, extractor, &mockCatalog{}, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, writer.calls, 1)
	assert.Empty(t, writer.calls[0].obs)
}

func TestCrawler_Crawl_EmptyNightWritesEmptyLog(t *testing.T) {
	writer := &mockWriter{}
	publisher := &mockPublisher{}

	c := newCrawler(&mockArchives{}, &mockExtractor{}, &mockCatalog{}, writer, publisher, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), elpNight)
	require.NoError(t, err)
	assert.Zero(t, res.Archives)
	require.Len(t, writer.calls, 1)
	assert.Empty(t, writer.calls[0].obs)
	assert.Empty(t, publisher.nights, "nothing to publish")
}

func TestCrawler_Crawl_LocateError(t *testing.T) {
	writer := &mockWriter{}
	c := newCrawler(&mockArchives{locateErr: errors.New("bad pattern")}, &mockExtractor{}, nil, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	_, err := c.Crawl(context.Background(), lscNight)
	require.Error(t, err)
	assert.Empty(t, writer.calls)
}

func TestCrawler_Crawl_WriteErrorIsFatal(t *testing.T) {
	archives, extractor := fixture()
	writeErr := errors.New("disk full")

	c := newCrawler(archives, extractor, nil, &mockWriter{err: writeErr}, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	_, err := c.Crawl(context.Background(), lscNight)
	require.ErrorIs(t, err, writeErr)
}

func TestCrawler_Crawl_PublishErrorNotFatal(t *testing.T) {
	archives, extractor := fixture()
	publisher := &mockPublisher{err: errors.New("broker unavailable")}

	c := newCrawler(archives, extractor, nil, &mockWriter{}, publisher, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, []domain.Night{lscNight}, publisher.nights)
}

func TestCrawler_Crawl_ContextCancelled(t *testing.T) {
	archives, extractor := fixture()
	writer := &mockWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newCrawler(archives, extractor, nil, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())
	_, err := c.Crawl(ctx, lscNight)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, writer.calls)
}

func TestCrawler_Crawl_Duration(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2017, time.November, 28, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	archives, extractor := fixture()
	extractor.onRead = func() { fakeClock.Advance(1500 * time.Millisecond) }

	c := newCrawler(archives, extractor, nil, &mockWriter{}, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	res, err := c.Crawl(context.Background(), lscNight)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, res.Duration)
}

func TestCrawler_CrawlAll(t *testing.T) {
	archives, extractor := fixture()
	writer := &mockWriter{}

	c := newCrawler(archives, extractor, nil, writer, nil, pipeline.CrawlerConfig{PerdiemDir: "/p"}, observability.NewMetrics())

	results, err := c.CrawlAll(context.Background(), []domain.Night{lscNight, elpNight})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, lscNight, results[0].Night)
	assert.Equal(t, elpNight, results[1].Night)

	paths := []string{writer.calls[0].path, writer.calls[1].path}
	assert.Equal(t, []string{"/p/nres01-20171128.txt", "/p/nres02-20180105.txt"}, paths)
}

func TestCrawler_CrawlAll_StopsAtFatalError(t *testing.T) {
	archives, extractor := fixture()
	writer := &mockWriter{err: errors.New("read-only file system")}

	c := newCrawler(archives, extractor, nil, writer, nil, pipeline.CrawlerConfig{}, observability.NewMetrics())

	results, err := c.CrawlAll(context.Background(), []domain.Night{lscNight, elpNight})
	require.Error(t, err)
	assert.Empty(t, results)
}

// --- reporter ---

type mockReader struct {
	series map[string]domain.Series
	errs   map[string]error
	paths  []string
}

func (m *mockReader) Read(path string) (domain.Series, error) {
	m.paths = append(m.paths, path)
	if err := m.errs[path]; err != nil {
		return domain.Series{}, err
	}
	if s, ok := m.series[path]; ok {
		return s, nil
	}
	return domain.Series{}, fmt.Errorf("%s: %w", path, domain.ErrNoData)
}

type mockRenderer struct {
	datasets []domain.Dataset
	curves   []domain.Curve
	calls    int
	err      error
}

func (m *mockRenderer) Render(datasets []domain.Dataset, curves []domain.Curve) error {
	m.calls++
	m.datasets = datasets
	m.curves = curves
	return m.err
}

func series(names ...string) domain.Series {
	var s domain.Series
	for i, n := range names {
		s.Append(n, float64(5+i), float64(100-i))
	}
	return s
}

func TestReporter_Plot(t *testing.T) {
	reader := &mockReader{series: map[string]domain.Series{
		"/p/nres01-20171128.txt": series("HD1", "HD2"),
		"/p/nres02-20180105.txt": series("HD3"),
	}}
	renderer := &mockRenderer{}
	metrics := observability.NewMetrics()
	curves := []domain.Curve{{Label: "NASA req", Color: "lightgreen", RefFlux: 4180030, RON: 0.001}}

	r := pipeline.NewReporter(reader, renderer, pipeline.ReporterConfig{
		PerdiemDir: "/p",
		SiteColors: map[string]string{"elp": "red"},
	}, discardLogger(), metrics)

	res, err := r.Plot(context.Background(), []domain.Night{lscNight, elpNight}, curves)
	require.NoError(t, err)

	assert.Equal(t, pipeline.PlotResult{LogsRead: 2, Points: 3}, res)
	require.Equal(t, 1, renderer.calls)
	require.Len(t, renderer.datasets, 2)
	assert.Equal(t, "lsc nres01 20171128", renderer.datasets[0].Label)
	assert.Equal(t, "blue", renderer.datasets[0].Color)
	assert.Equal(t, "elp nres02 20180105", renderer.datasets[1].Label)
	assert.Equal(t, "red", renderer.datasets[1].Color)
	assert.Equal(t, curves, renderer.curves)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.LogsRead), 0)
}

func TestReporter_Plot_SkipsMissingLogs(t *testing.T) {
	reader := &mockReader{series: map[string]domain.Series{
		"/p/nres02-20180105.txt": series("HD3"),
	}}
	renderer := &mockRenderer{}
	metrics := observability.NewMetrics()

	r := pipeline.NewReporter(reader, renderer, pipeline.ReporterConfig{PerdiemDir: "/p"}, discardLogger(), metrics)

	res, err := r.Plot(context.Background(), []domain.Night{lscNight, elpNight}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LogsSkipped)
	assert.Equal(t, 1, res.LogsRead)
	require.Len(t, renderer.datasets, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LogsSkipped), 0)
}

func TestReporter_Plot_MalformedLogIsFatal(t *testing.T) {
	parseErr := errors.New("/p/nres01-20171128.txt:3: expected 4 fields, got 2")
	reader := &mockReader{errs: map[string]error{"/p/nres01-20171128.txt": parseErr}}
	renderer := &mockRenderer{}

	r := pipeline.NewReporter(reader, renderer, pipeline.ReporterConfig{PerdiemDir: "/p"}, discardLogger(), observability.NewMetrics())

	_, err := r.Plot(context.Background(), []domain.Night{lscNight, elpNight}, nil)
	require.ErrorIs(t, err, parseErr)
	assert.Zero(t, renderer.calls)
	assert.Len(t, reader.paths, 1, "reading stops at the malformed log")
}

func TestReporter_Plot_RenderError(t *testing.T) {
	renderErr := errors.New("unsupported format")
	r := pipeline.NewReporter(&mockReader{}, &mockRenderer{err: renderErr}, pipeline.ReporterConfig{}, discardLogger(), observability.NewMetrics())

	_, err := r.Plot(context.Background(), []domain.Night{lscNight}, nil)
	require.ErrorIs(t, err, renderErr)
}

func TestReporter_Plot_NoNightsStillRendersCurves(t *testing.T) {
	renderer := &mockRenderer{}
	curves := []domain.Curve{{Label: "lsc nres01", Color: "blue", RefFlux: 180000, RON: 5}}

	r := pipeline.NewReporter(&mockReader{}, renderer, pipeline.ReporterConfig{}, discardLogger(), observability.NewMetrics())

	_, err := r.Plot(context.Background(), nil, curves)
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)
	assert.Empty(t, renderer.datasets)
	assert.Equal(t, curves, renderer.curves)
}
