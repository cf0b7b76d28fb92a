package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/infra/logger"
)

// CROConf configures the common-reference operator client.
type CROConf struct {
	BaseURL   string   `json:"base_url"`
	Auth      AuthConf `json:"auth"`
	TimeoutMS int      `json:"timeout_ms"`
	CacheTTLS int      `json:"cache_ttl_s"`
}

// SetDefaults fills unset fields with sane defaults.
func (c *CROConf) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 10000
	}
	if c.CacheTTLS == 0 {
		c.CacheTTLS = 300
	}
}

type croEntry struct {
	entry   Entry
	fetched time.Time
}

// CROClient resolves participants against the common-reference operator
// over HTTP with client-credentials authentication. Resolutions are
// cached for the configured TTL.
type CROClient struct {
	base   string
	client *http.Client
	cred   *clientCred
	ttl    time.Duration
	log    logger.Logger

	mu    sync.Mutex
	cache map[model.Participant]croEntry

	now func() time.Time
}

// NewCROClient creates a client for the operator at conf.BaseURL.
func NewCROClient(conf CROConf) *CROClient {
	conf.SetDefaults()
	return &CROClient{
		base:   conf.BaseURL,
		client: &http.Client{Timeout: time.Duration(conf.TimeoutMS) * time.Millisecond},
		cred:   newClientCred(conf.Auth),
		ttl:    time.Duration(conf.CacheTTLS) * time.Second,
		log:    logger.New("cro-client"),
		cache:  make(map[model.Participant]croEntry),
		now:    time.Now,
	}
}

// Endpoint returns the HTTP endpoint messages for p are posted to.
func (c *CROClient) Endpoint(p model.Participant) (string, error) {
	e, err := c.resolve(p)
	if err != nil {
		return "", err
	}
	if e.Endpoint == "" {
		return "", fmt.Errorf("operator has no endpoint for %s", p)
	}
	return e.Endpoint, nil
}

// PublicBlob returns the cs1. combined public-key blob of p.
func (c *CROClient) PublicBlob(p model.Participant) (string, error) {
	e, err := c.resolve(p)
	if err != nil {
		return "", err
	}
	if e.PublicBlob == "" {
		return "", fmt.Errorf("operator has no public key for %s", p)
	}
	return e.PublicBlob, nil
}

func (c *CROClient) resolve(p model.Participant) (Entry, error) {
	c.mu.Lock()
	if cached, ok := c.cache[p]; ok && c.now().Sub(cached.fetched) < c.ttl {
		c.mu.Unlock()
		return cached.entry, nil
	}
	c.mu.Unlock()

	e, err := c.query(p)
	if err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	c.cache[p] = croEntry{entry: e, fetched: c.now()}
	c.mu.Unlock()
	return e, nil
}

func (c *CROClient) query(p model.Participant) (Entry, error) {
	q := url.Values{}
	q.Set("role", p.Role.String())
	q.Set("domain", p.Domain)
	req, err := http.NewRequest(http.MethodGet, c.base+"/participants?"+q.Encode(), nil)
	if err != nil {
		return Entry{}, err
	}
	if err := c.cred.setAuthHeader(req); err != nil {
		return Entry{}, fmt.Errorf("authenticate against operator: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("query operator for %s: %w", p, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return Entry{}, fmt.Errorf("operator does not know %s", p)
	}
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("operator returned status %d for %s", resp.StatusCode, p)
	}
	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("decode operator response: %w", err)
	}
	c.log.Debugf("resolved %s via common reference", p)
	return e, nil
}

// Invalidate drops the cached resolution of p, forcing a fresh query on
// the next lookup. Common-reference update handlers call this.
func (c *CROClient) Invalidate(p model.Participant) {
	c.mu.Lock()
	delete(c.cache, p)
	c.mu.Unlock()
}
