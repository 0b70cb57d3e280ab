package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/certificate-manager/engine"
)

// StatsSource is implemented by *engine.Engine.
type StatsSource interface {
	Stats() engine.Stats
}

// EngineCollector exports engine counters at scrape time.
type EngineCollector struct {
	source StatsSource

	signersDesc         *prometheus.Desc
	minimumSignersDesc  *prometheus.Desc
	quorumReachableDesc *prometheus.Desc
	certificatesDesc    *prometheus.Desc
	lastSeqDesc         *prometheus.Desc
}

func NewEngineCollector(namespace string, source StatsSource) *EngineCollector {
	return &EngineCollector{
		source:              source,
		signersDesc:         prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", "signers"), "Registered signers", nil, nil),
		minimumSignersDesc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", "minimum_signers"), "Approval threshold", nil, nil),
		quorumReachableDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", "quorum_reachable"), "1 if signers count is at least the threshold", nil, nil),
		certificatesDesc:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", "certificates"), "Certificates by status", []string{"status"}, nil),
		lastSeqDesc:         prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", "notification_seq"), "Sequence number of the last notification", nil, nil),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.signersDesc
	ch <- c.minimumSignersDesc
	ch <- c.quorumReachableDesc
	ch <- c.certificatesDesc
	ch <- c.lastSeqDesc
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	reachable := 0.0
	if stats.QuorumReachable {
		reachable = 1
	}

	ch <- prometheus.MustNewConstMetric(c.signersDesc, prometheus.GaugeValue, float64(stats.SignersCount))
	ch <- prometheus.MustNewConstMetric(c.minimumSignersDesc, prometheus.GaugeValue, float64(stats.MinimumSigners))
	ch <- prometheus.MustNewConstMetric(c.quorumReachableDesc, prometheus.GaugeValue, reachable)
	ch <- prometheus.MustNewConstMetric(c.certificatesDesc, prometheus.GaugeValue, float64(stats.PendingCertificates), "pending")
	ch <- prometheus.MustNewConstMetric(c.certificatesDesc, prometheus.GaugeValue, float64(stats.ApprovedCertificates), "approved")
	ch <- prometheus.MustNewConstMetric(c.lastSeqDesc, prometheus.CounterValue, float64(stats.LastSeq))
}
