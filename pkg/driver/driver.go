// Package driver turns a types.TestConfig into a bounded-concurrency
// stream of outbound HTTP requests, reporting one types.RequestOutcome
// per completed request on a caller-supplied channel.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadpulse/loadpulse/pkg/sitemap"
	"github.com/loadpulse/loadpulse/pkg/types"
)

// NewClient builds the pooled *http.Client shared by every request of one
// test run. Transport defaults follow the pooling baseline: bounded
// per-host idle connections, a dial keep-alive, and an overall request
// timeout enforced by the client itself.
func NewClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// job is one unit of driver work: a fully-formed outbound request plus
// the information needed to judge its outcome.
type job struct {
	method      string
	url         string
	headers     map[string]string
	body        []byte
	decodeJSON  bool
	expectation *types.ApiTest
}

// Driver drives cfg.ConcurrentUsers requests in flight at a time against
// an http.Client, fanning completed outcomes into outcomes.
type Driver struct {
	logger        *slog.Logger
	sitemapLoader sitemap.Loader
}

// New returns a Driver that logs through logger (or slog.Default() if nil)
// and resolves stress sitemaps with the XML loader.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{logger: logger, sitemapLoader: sitemap.XMLLoader{}}
}

// NewWithSitemapLoader is New with an overridable sitemap loader, for tests
// that want to avoid touching the filesystem.
func NewWithSitemapLoader(logger *slog.Logger, loader sitemap.Loader) *Driver {
	d := New(logger)
	d.sitemapLoader = loader
	return d
}

// Run drives cfg against client, sending one outcome per completed request
// on outcomes and closing nothing on return — the caller owns the channel's
// lifetime. stopFlag is polled by Stress to end the feed early; Load and
// API ignore it since their job sets are finite up front.
func (d *Driver) Run(ctx context.Context, cfg types.TestConfig, client *http.Client, outcomes chan<- types.RequestOutcome, stopFlag *atomic.Bool) error {
	jobs, err := d.buildJobs(ctx, cfg)
	if err != nil {
		return err
	}

	width := cfg.ConcurrentUsers
	if width < 1 {
		width = 1
	}

	jobCh := make(chan job, width)
	var wg sync.WaitGroup
	wg.Add(width)
	for i := 0; i < width; i++ {
		go func() {
			defer wg.Done()
			d.worker(ctx, client, jobCh, outcomes)
		}()
	}

	switch cfg.Kind {
	case types.KindLoad, types.KindAPI:
		d.feedFinite(ctx, jobs, jobCh)
	case types.KindStress:
		d.feedUntilStopped(ctx, jobs, jobCh, stopFlag)
	default:
		close(jobCh)
		wg.Wait()
		return types.NewAppError(types.ErrorKindConfigInvalid, "unknown test kind", nil)
	}

	wg.Wait()
	return nil
}

// buildJobs translates cfg into the finite or template job set it drives.
// Stress repeats its job set, picking one entry per request; when the
// config names a sitemap, that set is every <loc> it contains instead of
// the single target URL.
func (d *Driver) buildJobs(ctx context.Context, cfg types.TestConfig) ([]job, error) {
	switch cfg.Kind {
	case types.KindLoad:
		j := job{method: http.MethodGet, url: cfg.TargetURL}
		jobs := make([]job, cfg.NumRequests)
		for i := range jobs {
			jobs[i] = j
		}
		return jobs, nil
	case types.KindStress:
		return d.stressTargets(ctx, cfg)
	case types.KindAPI:
		jobs := make([]job, 0, len(cfg.APITests))
		for i := range cfg.APITests {
			t := cfg.APITests[i]
			j := job{
				method:      string(t.Method),
				url:         t.URL,
				headers:     t.Headers,
				decodeJSON:  true,
				expectation: &cfg.APITests[i],
			}
			if t.Body != nil {
				b, err := json.Marshal(t.Body)
				if err != nil {
					return nil, types.NewAppError(types.ErrorKindJSONMalformed, "encoding api test body", err)
				}
				j.body = b
			}
			jobs = append(jobs, j)
		}
		return jobs, nil
	default:
		return nil, types.NewAppError(types.ErrorKindConfigInvalid, "unknown test kind", nil)
	}
}

// stressTargets resolves the URL set a stress run should hammer: the
// sitemap's <loc> entries when SitemapPath is set, otherwise TargetURL alone.
func (d *Driver) stressTargets(ctx context.Context, cfg types.TestConfig) ([]job, error) {
	if cfg.SitemapPath == "" {
		return []job{{method: http.MethodGet, url: cfg.TargetURL}}, nil
	}
	urls, err := d.sitemapLoader.Load(ctx, cfg.SitemapPath)
	if err != nil {
		return nil, err
	}
	jobs := make([]job, len(urls))
	for i, u := range urls {
		jobs[i] = job{method: http.MethodGet, url: u}
	}
	return jobs, nil
}

// feedFinite enqueues every job once, then closes jobCh — used by load and
// API runs whose size is known up front.
func (d *Driver) feedFinite(ctx context.Context, jobs []job, jobCh chan<- job) {
	defer close(jobCh)
	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			return
		}
	}
}

// feedUntilStopped repeats jobs — uniform-randomly picking one per request
// when there's more than one target — until stopFlag is set (the stress
// deadline's soft cancel) or ctx is cancelled.
func (d *Driver) feedUntilStopped(ctx context.Context, jobs []job, jobCh chan<- job, stopFlag *atomic.Bool) {
	defer close(jobCh)
	if len(jobs) == 0 {
		return
	}
	for {
		if stopFlag != nil && stopFlag.Load() {
			return
		}
		next := jobs[0]
		if len(jobs) > 1 {
			next = jobs[rand.Intn(len(jobs))]
		}
		select {
		case jobCh <- next:
		case <-ctx.Done():
			return
		}
	}
}

// worker drains jobCh, executing each job and forwarding its outcome.
// It exits when jobCh closes or ctx is cancelled.
func (d *Driver) worker(ctx context.Context, client *http.Client, jobCh <-chan job, outcomes chan<- types.RequestOutcome) {
	for {
		select {
		case j, ok := <-jobCh:
			if !ok {
				return
			}
			outcome := d.execute(ctx, client, j)
			select {
			case outcomes <- outcome:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// execute issues one HTTP request and classifies the result, timing only
// the request/response round trip per spec.
func (d *Driver) execute(ctx context.Context, client *http.Client, j job) types.RequestOutcome {
	start := time.Now()

	var bodyReader io.Reader
	if j.body != nil {
		bodyReader = bytes.NewReader(j.body)
	}

	req, err := http.NewRequestWithContext(ctx, j.method, j.url, bodyReader)
	if err != nil {
		return types.RequestOutcome{
			Duration:    time.Since(start),
			Err:         &types.TransportError{Op: "build_request", Message: err.Error()},
			Expectation: j.expectation,
		}
	}
	for k, v := range j.headers {
		req.Header.Set(k, v)
	}
	if j.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return types.RequestOutcome{
			Duration:    time.Since(start),
			Err:         &types.TransportError{Op: "do_request", Message: err.Error()},
			Expectation: j.expectation,
		}
	}
	defer resp.Body.Close()

	var body any
	if j.decodeJSON {
		if decErr := json.NewDecoder(resp.Body).Decode(&body); decErr != nil && !errors.Is(decErr, io.EOF) {
			io.Copy(io.Discard, resp.Body)
			return types.RequestOutcome{
				Status:      resp.StatusCode,
				Duration:    time.Since(start),
				Err:         &types.TransportError{Op: "decode_body", Message: decErr.Error()},
				Expectation: j.expectation,
			}
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return types.RequestOutcome{
		Status:      resp.StatusCode,
		Duration:    time.Since(start),
		Body:        body,
		Expectation: j.expectation,
	}
}
