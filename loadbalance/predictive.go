// Copyright (c) 2024 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package loadbalance

import (
	"bytes"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/aicore/aicall/registry"
)

const (
	_initialRefreshDelay = 5 * time.Second
	_refreshPeriod       = 10 * time.Second

	_predictorConnectTimeout = 3 * time.Second
	_predictorReadTimeout    = 5 * time.Second
)

var _json = jsoniter.ConfigCompatibleWithStandardLibrary

// Predictive routes by fusing externally predicted per-endpoint health
// scores with locally observed breaker and latency signals.
//
// A background task periodically refreshes the score cache from the
// prediction service; the cache is replaced as one atomic snapshot, so a
// concurrent selection reads either the whole old map or the whole new one.
// Prediction failures degrade the cache to uniform weights.
type Predictive struct {
	url       string
	client    *http.Client
	collector *Collector
	logger    *zap.Logger

	initialDelay  time.Duration
	refreshPeriod time.Duration

	weights atomic.Value // map[registry.Endpoint]float64
	known   atomic.Value // []registry.Endpoint

	mu   sync.Mutex
	rand *rand.Rand

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{} // closed when refreshLoop returns
}

// PredictiveOption customizes a Predictive balancer.
type PredictiveOption func(*Predictive)

// PredictiveSource sets the randomness source, for deterministic tests.
func PredictiveSource(source rand.Source) PredictiveOption {
	return func(p *Predictive) {
		p.rand = rand.New(source)
	}
}

// PredictiveRefresh overrides the background refresh schedule.
func PredictiveRefresh(initialDelay, period time.Duration) PredictiveOption {
	return func(p *Predictive) {
		p.initialDelay = initialDelay
		p.refreshPeriod = period
	}
}

// NewPredictive builds a predictive balancer and starts its refresh task.
// The prediction service URL comes from the config in deps.
func NewPredictive(deps Deps, opts ...PredictiveOption) *Predictive {
	deps = deps.withDefaults()
	p := &Predictive{
		url: deps.Config.PredictorURL(),
		client: &http.Client{
			Timeout: _predictorReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: _predictorConnectTimeout}).DialContext,
			},
		},
		collector:     NewCollector(deps.Breakers, deps.Timeouts),
		logger:        deps.Logger,
		initialDelay:  _initialRefreshDelay,
		refreshPeriod: _refreshPeriod,
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.weights.Store(map[registry.Endpoint]float64{})
	p.known.Store([]registry.Endpoint{})
	go p.refreshLoop()
	return p
}

// Select implements Balancer.
func (p *Predictive) Select(service string, endpoints []registry.Endpoint) (registry.Endpoint, bool) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, false
	}
	if len(endpoints) == 1 {
		return endpoints[0], true
	}

	// Publish the membership so the background refresh sees it.
	known := make([]registry.Endpoint, len(endpoints))
	copy(known, endpoints)
	p.known.Store(known)

	weights := p.weights.Load().(map[registry.Endpoint]float64)
	if len(weights) == 0 {
		// First call: warm the cache synchronously.
		weights = p.fetch(endpoints)
		p.weights.Store(weights)
	}

	metrics := p.collector.Collect(service, endpoints)

	finals := make([]float64, len(endpoints))
	var sum float64
	for i, e := range endpoints {
		predicted, ok := weights[e]
		if !ok {
			predicted = 1.0
		}
		final := predicted * p.collector.LocalWeight(metrics[e])
		finals[i] = final
		sum += final
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sum <= 0 {
		return endpoints[p.rand.Intn(len(endpoints))], true
	}

	point := p.rand.Float64() * sum
	var cumulative float64
	for i, e := range endpoints {
		cumulative += finals[i]
		if point < cumulative {
			return e, true
		}
	}
	// Rounding corner on the last bucket.
	return endpoints[len(endpoints)-1], true
}

// Stop cancels the background refresh task, waits for it to exit, and drops
// the predictor's idle connections.
func (p *Predictive) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		p.client.CloseIdleConnections()
	})
}

func (p *Predictive) refreshLoop() {
	defer close(p.done)
	timer := time.NewTimer(p.initialDelay)
	defer timer.Stop()
	select {
	case <-p.stop:
		return
	case <-timer.C:
	}
	p.refresh()

	ticker := time.NewTicker(p.refreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.refresh()
		}
	}
}

func (p *Predictive) refresh() {
	known := p.known.Load().([]registry.Endpoint)
	if len(known) == 0 {
		return
	}
	p.logger.Debug("refreshing predicted weights", zap.Int("endpoints", len(known)))
	p.weights.Store(p.fetch(known))
}

// fetch asks the prediction service to score the endpoints. Any HTTP or
// parse failure degrades to uniform weights so that selection approximates
// uniform random.
func (p *Predictive) fetch(endpoints []registry.Endpoint) map[registry.Endpoint]float64 {
	nodes := make([]string, len(endpoints))
	for i, e := range endpoints {
		nodes[i] = e.String()
	}

	scores, err := p.post(nodes)
	if err != nil {
		p.logger.Warn("prediction service unavailable, falling back to uniform weights",
			zap.String("url", p.url),
			zap.Error(err))
		uniform := make(map[registry.Endpoint]float64, len(endpoints))
		for _, e := range endpoints {
			uniform[e] = 1.0
		}
		return uniform
	}

	out := make(map[registry.Endpoint]float64, len(endpoints))
	for _, e := range endpoints {
		score, ok := scores[e.String()]
		if !ok {
			score = 1.0
		}
		if score < 0 {
			score = 0
		}
		out[e] = score
	}
	p.logger.Debug("fetched predicted weights", zap.Int("endpoints", len(out)))
	return out
}

func (p *Predictive) post(nodes []string) (map[string]float64, error) {
	body, err := _json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	res, err := p.client.Post(p.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return nil, &unexpectedStatusError{status: res.Status}
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var scores map[string]float64
	if err := _json.Unmarshal(data, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

type unexpectedStatusError struct {
	status string
}

func (e *unexpectedStatusError) Error() string {
	return "unexpected HTTP status from prediction service: " + e.status
}
