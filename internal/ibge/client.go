// Package ibge fetches statistics from the IBGE Agregados v3 API.
package ibge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/geosampa/censo-cli/internal/harmonize"
)

// DefaultBaseURL is the public Agregados v3 endpoint.
const DefaultBaseURL = "https://servicodados.ibge.gov.br/api/v3/agregados"

// Options configures the API client.
type Options struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	ChunkSize   int        // municipalities per request, keeps URLs short
	Concurrency int        // parallel chunk fetches
	RateLimit   rate.Limit // requests per second against the API
}

// Client is an IBGE Agregados API client with retry and rate limiting.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a Client with the given options, applying defaults for
// zero fields.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "censo-cli/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 5
	}
	return &Client{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(opts.RateLimit, int(opts.RateLimit)),
	}
}

// SeriesQuery identifies one variable of one aggregate table.
type SeriesQuery struct {
	Aggregate  string // table id, e.g. "3563"
	Variable   string // variable id, e.g. "2011"
	Period     string // e.g. "2022", or "last"
	Localities string // raw localities expression, e.g. "N6[3550308]"
}

// ClassQuery identifies a classified (grouped-distribution) variable.
type ClassQuery struct {
	Aggregate      string
	Variable       string
	Period         string
	Classification string // e.g. "1234[all]"
}

// FetchSeries fetches a single-value series for the given localities
// expression and returns one value per locality.
func (c *Client) FetchSeries(ctx context.Context, q SeriesQuery) ([]harmonize.ValueRow, error) {
	url := fmt.Sprintf("%s/%s/periodos/%s/variaveis/%s?localidades=%s",
		c.opts.BaseURL, q.Aggregate, q.Period, q.Variable, q.Localities)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseSeries(body, q.Period)
}

// FetchSeriesChunked fetches a single-value series for an explicit list of
// municipality codes, batching requests to keep URLs short and fetching
// batches concurrently. Failed batches abort the whole fetch.
func (c *Client) FetchSeriesChunked(ctx context.Context, q SeriesQuery, munCodes []string) ([]harmonize.ValueRow, error) {
	log := zap.L().With(zap.String("component", "ibge"))

	var mu sync.Mutex
	var all []harmonize.ValueRow

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for start := 0; start < len(munCodes); start += c.opts.ChunkSize {
		end := min(start+c.opts.ChunkSize, len(munCodes))
		chunk := munCodes[start:end]

		g.Go(func() error {
			cq := q
			cq.Localities = fmt.Sprintf("N6[%s]", strings.Join(chunk, ","))
			rows, err := c.FetchSeries(gCtx, cq)
			if err != nil {
				return eris.Wrapf(err, "ibge: fetch chunk of %d municipalities", len(chunk))
			}
			mu.Lock()
			all = append(all, rows...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("fetched series",
		zap.Int("municipalities", len(munCodes)),
		zap.Int("values", len(all)),
	)
	return all, nil
}

// FetchClasses fetches a classified variable in flat view and returns one row
// per locality x income class. Non-numeric values ("-", "X", "..") become 0.
func (c *Client) FetchClasses(ctx context.Context, q ClassQuery) ([]harmonize.Row, error) {
	url := fmt.Sprintf("%s/%s/periodos/%s/variaveis/%s?localidades=N6[all]&classificacao=%s&view=flat",
		c.opts.BaseURL, q.Aggregate, q.Period, q.Variable, q.Classification)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseFlatClasses(body)
}

// get performs a rate-limited GET with retry on transient failures.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	log := zap.L().With(zap.String("component", "ibge"))

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ibge: rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "ibge: build request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				lastErr = eris.Errorf("ibge: status %d", resp.StatusCode)
			default:
				return nil, eris.Errorf("ibge: GET %s: status %d", url, resp.StatusCode)
			}
		}

		if attempt < c.opts.MaxRetries {
			backoff := time.Duration(1<<attempt) * time.Second
			log.Warn("ibge request failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "ibge: cancelled during backoff")
			}
		}
	}
	return nil, eris.Wrapf(lastErr, "ibge: GET %s after %d attempts", url, c.opts.MaxRetries+1)
}

// seriesBlock mirrors the nested Agregados v3 response shape.
type seriesBlock struct {
	Resultados []struct {
		Series []struct {
			Localidade struct {
				ID string `json:"id"`
			} `json:"localidade"`
			Serie map[string]string `json:"serie"`
		} `json:"series"`
	} `json:"resultados"`
}

// parseSeries extracts (locality, value) pairs from a nested response,
// preferring the requested period and falling back to the latest one.
func parseSeries(body []byte, period string) ([]harmonize.ValueRow, error) {
	var blocks []seriesBlock
	if err := json.Unmarshal(body, &blocks); err != nil {
		return nil, eris.Wrap(err, "ibge: decode series response")
	}

	var rows []harmonize.ValueRow
	for _, block := range blocks {
		for _, res := range block.Resultados {
			for _, serie := range res.Series {
				if serie.Localidade.ID == "" || len(serie.Serie) == 0 {
					continue
				}
				raw, ok := serie.Serie[period]
				if !ok || period == "last" {
					keys := make([]string, 0, len(serie.Serie))
					for k := range serie.Serie {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					raw = serie.Serie[keys[len(keys)-1]]
				}
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					continue
				}
				rows = append(rows, harmonize.ValueRow{UnitCode: serie.Localidade.ID, Value: v})
			}
		}
	}
	return rows, nil
}

// Flat-view field names vary between tables; these are tried in order.
var (
	flatLocalityKeys = []string{"localidade", "n6", "id_localidade", "cd_mun"}
	flatLabelKeys    = []string{"categoria", "d1n", "classe", "faixa"}
	flatValueKeys    = []string{"valor", "v"}
)

// parseFlatClasses extracts (locality, class label, value) rows from a flat
// view response. The first element is metadata and is skipped.
func parseFlatClasses(body []byte) ([]harmonize.Row, error) {
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "ibge: decode flat response")
	}
	if len(raw) < 2 {
		return nil, eris.New("ibge: flat response has no data rows")
	}

	sample := lowerKeys(raw[1])
	locKey := firstKey(flatLocalityKeys, sample)
	labelKey := firstKey(flatLabelKeys, sample)
	valKey := firstKey(flatValueKeys, sample)
	if locKey == "" || labelKey == "" || valKey == "" {
		return nil, eris.New("ibge: could not identify locality/label/value fields in flat response")
	}

	rows := make([]harmonize.Row, 0, len(raw)-1)
	for _, rec := range raw[1:] {
		m := lowerKeys(rec)
		rows = append(rows, harmonize.Row{
			UnitCode: asString(m[locKey]),
			Label:    asString(m[labelKey]),
			Value:    asFloat(m[valKey]),
		})
	}
	return rows, nil
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func firstKey(options []string, m map[string]any) string {
	for _, k := range options {
		if _, ok := m[k]; ok {
			return k
		}
	}
	return ""
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case string:
		parsed, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
