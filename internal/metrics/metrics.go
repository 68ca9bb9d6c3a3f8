// Package metrics exports bounded-buffer progress as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
)

const namespace = "bbuf"

// Observer is a boundedbuf.Observer backed by Prometheus collectors.
type Observer struct {
	boundedbuf.NopObserver

	items     *prometheus.CounterVec
	quota     *prometheus.GaugeVec
	running   *prometheus.GaugeVec
	lastValue *prometheus.GaugeVec
	position  *prometheus.GaugeVec
}

// NewObserver creates the collectors and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items produced or consumed.",
		}, []string{"role"}),
		quota: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_items",
			Help:      "Item quota of the running loop.",
		}, []string{"role"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 while the loop is running.",
		}, []string{"role"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_item_value",
			Help:      "Value of the most recent item.",
		}, []string{"role"}),
		position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_item_position",
			Help:      "Buffer slot of the most recent item.",
		}, []string{"role"}),
	}
	for _, c := range []prometheus.Collector{o.items, o.quota, o.running, o.lastValue, o.position} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) Started(role boundedbuf.Role, items int) {
	o.quota.WithLabelValues(string(role)).Set(float64(items))
	o.running.WithLabelValues(string(role)).Set(1)
	o.items.WithLabelValues(string(role)).Add(0)
}

func (o *Observer) Item(ev boundedbuf.Event) {
	r := string(ev.Role)
	o.items.WithLabelValues(r).Inc()
	o.lastValue.WithLabelValues(r).Set(float64(ev.Value))
	o.position.WithLabelValues(r).Set(float64(ev.Position))
}

func (o *Observer) Finished(role boundedbuf.Role, _ int) {
	o.running.WithLabelValues(string(role)).Set(0)
}
