package metricsexport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const collectTimeout = 5 * time.Second

// DonationCollector reads donation and notification totals from the database
// at gather time.
type DonationCollector struct {
	db  *gorm.DB
	log *zap.Logger

	donations     *prometheus.Desc
	amount        *prometheus.Desc
	notifications *prometheus.Desc
	collectErrors prometheus.Counter
}

func NewDonationCollector(db *gorm.DB, log *zap.Logger, constLabels prometheus.Labels) *DonationCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &DonationCollector{
		db:  db,
		log: log.Named("metrics.export"),
		donations: prometheus.NewDesc(
			"donara_donations",
			"Donations by status.",
			[]string{"status"}, constLabels,
		),
		amount: prometheus.NewDesc(
			"donara_donation_amount",
			"Sum of donation amounts by status and currency.",
			[]string{"status", "currency"}, constLabels,
		),
		notifications: prometheus.NewDesc(
			"donara_provider_notifications",
			"Provider notifications by processing state.",
			[]string{"state"}, constLabels,
		),
		collectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "donara_metrics_collect_errors_total",
			Help:        "Failed database reads while collecting exported metrics.",
			ConstLabels: constLabels,
		}),
	}
}

func (c *DonationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.donations
	ch <- c.amount
	ch <- c.notifications
	c.collectErrors.Describe(ch)
}

func (c *DonationCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	var donationRows []struct {
		Status   string
		Currency string
		Count    int64
		Total    float64
	}
	err := c.db.WithContext(ctx).Raw(
		`SELECT status, currency, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
		 FROM donations
		 GROUP BY status, currency`,
	).Scan(&donationRows).Error
	if err != nil {
		c.fail("donations", err)
	} else {
		counts := map[string]int64{}
		for _, row := range donationRows {
			counts[row.Status] += row.Count
			ch <- prometheus.MustNewConstMetric(c.amount, prometheus.GaugeValue, row.Total, row.Status, row.Currency)
		}
		for status, count := range counts {
			ch <- prometheus.MustNewConstMetric(c.donations, prometheus.GaugeValue, float64(count), status)
		}
	}

	var notificationRows []struct {
		State string
		Count int64
	}
	err = c.db.WithContext(ctx).Raw(
		`SELECT state, COUNT(*) AS count
		 FROM provider_notifications
		 GROUP BY state`,
	).Scan(&notificationRows).Error
	if err != nil {
		c.fail("provider_notifications", err)
	} else {
		for _, row := range notificationRows {
			ch <- prometheus.MustNewConstMetric(c.notifications, prometheus.GaugeValue, float64(row.Count), row.State)
		}
	}

	c.collectErrors.Collect(ch)
}

func (c *DonationCollector) fail(table string, err error) {
	c.collectErrors.Inc()
	c.log.Warn("collect export metrics failed", zap.String("table", table), zap.Error(err))
}
