// Package testutil holds shared fakes for package tests.
package testutil

import (
	"sync"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// Drop is one envelope rejected by a route stage.
type Drop struct {
	Stage string
	Env   *domain.Envelope
	Err   error
}

// Obs is an in-memory ports.Observability that remembers what it was told.
type Obs struct {
	mu       sync.Mutex
	infos    []string
	errors   []error
	critical []error
	counters map[string]float64
	gauges   map[string]float64
	drops    []Drop
}

func NewObs() *Obs {
	return &Obs{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

func (o *Obs) LogInfo(msg string, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos = append(o.infos, msg)
}

func (o *Obs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

func (o *Obs) LogCritical(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.critical = append(o.critical, err)
}

func (o *Obs) IncCounter(name, route string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name+"/"+route] += v
}

func (o *Obs) ObserveLatency(string, string, float64) {}

func (o *Obs) SetGauge(name, route string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name+"/"+route] = v
}

func (o *Obs) RecordDrop(stage string, env *domain.Envelope, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops = append(o.drops, Drop{Stage: stage, Env: env, Err: err})
}

func (o *Obs) Counter(name, route string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name+"/"+route]
}

func (o *Obs) Gauge(name, route string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gauges[name+"/"+route]
}

func (o *Obs) Drops() []Drop {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Drop(nil), o.drops...)
}

func (o *Obs) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errors...)
}

func (o *Obs) Critical() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.critical...)
}

func (o *Obs) Infos() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.infos...)
}

var _ ports.Observability = (*Obs)(nil)
