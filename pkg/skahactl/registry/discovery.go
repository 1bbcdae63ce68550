package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

const (
	capabilitiesSuffix = "/skaha/capabilities"
	endpointKeySuffix  = "skaha"
)

// Substrings that mark an endpoint as non-production. Matched
// case-insensitively against both key and value unless dev mode is on.
var excludedKeywords = []string{"dev", "development", "test", "demo", "stage", "staging"}

// Known-redundant (registry, identifier) pairs dropped regardless of dev
// mode. SRCnet mirrors the CADC record, so it is suppressed there to avoid
// listing the same endpoint twice.
var omittedEndpoints = map[string]map[string]bool{
	"SRCnet": {"ivo://cadc.nrc.ca/skaha": true},
}

// Human labels for well-known service identifiers.
var displayNames = map[string]string{
	"ivo://cadc.nrc.ca/skaha":       "CANFAR (Canada)",
	"ivo://canfar.net/src/skaha":    "SRCnet (Canada)",
	"ivo://espsrc.iaa.csic.es/span": "espSRC (Spain)",
}

// Entry is one candidate Skaha endpoint parsed out of a registry document.
// Status is set once by the liveness probe: the HTTP status code, or nil
// when the endpoint was unreachable.
type Entry struct {
	Registry    string
	URI         string
	URL         string
	DisplayName string
	Status      *int
}

// Live reports whether the probe came back 200.
func (e *Entry) Live() bool {
	return e.Status != nil && *e.Status == http.StatusOK
}

// Results aggregates one discovery run. Found counts candidates before
// probing, Checked counts probes issued, Successful counts 200s.
type Results struct {
	Found      int
	Checked    int
	Successful int
	Entries    []Entry
}

// Engine fetches registry capability documents, extracts Skaha endpoints,
// and probes their liveness. One engine instance serves one discovery run
// and shares a single pooled client across every call in it.
type Engine struct {
	registries []config.Registry
	devMode    bool
	timeout    time.Duration
	client     *http.Client
	log        *zap.SugaredLogger
}

type Option func(*Engine)

func WithDevMode(dev bool) Option {
	return func(e *Engine) { e.devMode = dev }
}

func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.timeout = timeout }
}

func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

func New(registries []config.Registry, opts ...Option) *Engine {
	e := &Engine{
		registries: registries,
		// Short per-call timeout so one unreachable registry cannot stall
		// the whole run.
		timeout: 5 * time.Second,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: e.timeout}
	}
	return e
}

// Servers runs one full discovery cycle: fetch every registry, extract
// candidates, probe every candidate. Fetches and probes each fan out
// concurrently; the three phases are strictly sequential because
// extraction needs all fetched content and probing needs the full
// candidate list.
func (e *Engine) Servers(ctx context.Context) (*Results, error) {
	documents := make([]string, len(e.registries))
	var fetchGroup errgroup.Group
	for i, reg := range e.registries {
		i, reg := i, reg
		fetchGroup.Go(func() error {
			content, err := e.fetch(ctx, reg.URL)
			if err != nil {
				// Individual registry outages are tolerated; record and move on.
				e.log.Debugw("registry fetch failed", "registry", reg.Name, "error", err)
				return nil
			}
			documents[i] = content
			return nil
		})
	}
	_ = fetchGroup.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := &Results{}
	for i, reg := range e.registries {
		if documents[i] == "" {
			continue
		}
		results.Entries = append(results.Entries, e.extract(reg.Name, documents[i])...)
	}
	results.Found = len(results.Entries)
	if results.Found == 0 {
		return results, nil
	}

	var probeGroup errgroup.Group
	var mu sync.Mutex
	for i := range results.Entries {
		entry := &results.Entries[i]
		probeGroup.Go(func() error {
			status := e.check(ctx, entry.URL)
			mu.Lock()
			defer mu.Unlock()
			entry.Status = status
			results.Checked++
			if entry.Live() {
				results.Successful++
			}
			return nil
		})
	}
	_ = probeGroup.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetch retrieves one registry capability document as plain text.
func (e *Engine) fetch(ctx context.Context, registryURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, registryURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("registry returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extract parses line-oriented key=value records. A line qualifies when its
// value ends with /skaha/capabilities and its key ends with skaha; the
// base URL is the value with /capabilities stripped.
func (e *Engine) extract(registryName, content string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !strings.HasSuffix(value, capabilitiesSuffix) || !strings.HasSuffix(key, endpointKeySuffix) {
			continue
		}
		if !e.devMode && containsExcludedKeyword(key, value) {
			continue
		}
		if omittedEndpoints[registryName][key] {
			continue
		}
		entries = append(entries, Entry{
			Registry:    registryName,
			URI:         key,
			URL:         strings.TrimSuffix(value, "/capabilities"),
			DisplayName: displayNames[key],
		})
	}
	return entries
}

func containsExcludedKeyword(key, value string) bool {
	lowerKey := strings.ToLower(key)
	lowerValue := strings.ToLower(value)
	for _, keyword := range excludedKeywords {
		if strings.Contains(lowerKey, keyword) || strings.Contains(lowerValue, keyword) {
			return true
		}
	}
	return false
}

// check probes one candidate with a HEAD request. Liveness failure is data,
// not an error: an unreachable endpoint yields a nil status.
func (e *Engine) check(ctx context.Context, endpointURL string) *int {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpointURL, nil)
	if err != nil {
		return nil
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	status := resp.StatusCode
	return &status
}
