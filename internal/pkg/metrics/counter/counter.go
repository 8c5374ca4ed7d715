package counter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels shared by the license and download counters.
const (
	ResultOK             = "ok"
	ResultNotFound       = "not_found"
	ResultExpired        = "expired"
	ResultRevoked        = "revoked"
	ResultDeviceConflict = "device_conflict"
	ResultForbidden      = "forbidden"
	ResultInvalid        = "invalid"
	ResultLinkExpired    = "link_expired"
	ResultQuotaExceeded  = "quota_exceeded"
	ResultError          = "error"
)

// Registry holds every collector of the service so tests and /metrics see the same set.
var Registry = prometheus.NewRegistry()

var (
	licenseValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_validations_total",
		Help: "License validation attempts by result.",
	}, []string{"result"})

	licenseDeactivations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_deactivations_total",
		Help: "License deactivation attempts by result.",
	}, []string{"result"})

	downloadRedemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "download_redemptions_total",
		Help: "Download token redemptions by result.",
	}, []string{"result"})

	downloadTokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "download_tokens_issued_total",
		Help: "Download tokens signed and persisted.",
	})

	billingWebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Payment processor webhook events by type and outcome.",
	}, []string{"type", "outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		licenseValidations,
		licenseDeactivations,
		downloadRedemptions,
		downloadTokensIssued,
		billingWebhookEvents,
	)
}

func AddLicenseValidation(result string) {
	licenseValidations.WithLabelValues(result).Inc()
}

func AddLicenseDeactivation(result string) {
	licenseDeactivations.WithLabelValues(result).Inc()
}

func AddDownloadRedemption(result string) {
	downloadRedemptions.WithLabelValues(result).Inc()
}

func AddDownloadTokenIssued() {
	downloadTokensIssued.Inc()
}

func AddBillingWebhookEvent(eventType, outcome string) {
	billingWebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
