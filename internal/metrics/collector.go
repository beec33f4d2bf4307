package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

// StatsStore defines the interface for retrieving agreement counts.
type StatsStore interface {
	GetAgreementStats(ctx context.Context) (*models.AgreementStats, error)
}

// AgreementCollector exposes cross-tenant agreement counts as gauges. Stats
// are read from the database on scrape and cached briefly so frequent
// scrapes do not hammer the aggregate query.
type AgreementCollector struct {
	store  StatsStore
	logger zerolog.Logger

	mu            sync.Mutex
	lastCollected time.Time
	cachedStats   *models.AgreementStats
	cacheExpiry   time.Duration

	agreementsDesc *prometheus.Desc
	orgsDesc       *prometheus.Desc
}

// NewAgreementCollector creates a collector over the given store.
func NewAgreementCollector(store StatsStore, logger zerolog.Logger) *AgreementCollector {
	return &AgreementCollector{
		store:       store,
		logger:      logger.With().Str("component", "agreement_collector").Logger(),
		cacheExpiry: 15 * time.Second,
		agreementsDesc: prometheus.NewDesc(
			"sevara_baa_agreements",
			"Number of organizations by agreement status",
			[]string{"status"},
			nil,
		),
		orgsDesc: prometheus.NewDesc(
			"sevara_organizations_total",
			"Total number of organizations",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *AgreementCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.agreementsDesc
	ch <- c.orgsDesc
}

// Collect implements prometheus.Collector.
func (c *AgreementCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.stats()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to collect agreement stats")
		return
	}

	byStatus := map[models.AgreementStatus]int64{
		models.AgreementStatusNotStarted:              stats.NotStarted,
		models.AgreementStatusAwaitingOrgSignature:    stats.AwaitingOrgSignature,
		models.AgreementStatusAwaitingVendorSignature: stats.AwaitingVendorSignature,
		models.AgreementStatusExecuted:                stats.Executed,
		models.AgreementStatusVoided:                  stats.Voided,
	}
	for status, count := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.agreementsDesc, prometheus.GaugeValue, float64(count), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.orgsDesc, prometheus.GaugeValue, float64(stats.TotalOrgs))
}

func (c *AgreementCollector) stats() (*models.AgreementStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedStats != nil && time.Since(c.lastCollected) < c.cacheExpiry {
		return c.cachedStats, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.store.GetAgreementStats(ctx)
	if err != nil {
		return nil, err
	}

	c.cachedStats = stats
	c.lastCollected = time.Now()
	return stats, nil
}
