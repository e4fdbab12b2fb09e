package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	OrdersAssembled   prometheus.Counter
	ChargesCreated    prometheus.Counter
	OnChainPayments   prometheus.Counter
	PaymentFailures   prometheus.Counter
	TokensMinted      prometheus.Counter
	MintBatchFailures prometheus.Counter
	MintBatchSec      prometheus.Histogram
	AccessGranted     prometheus.Counter
	AccessDenied      prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ordersAssembled := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_orders_assembled_total"})
	chargesCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_instant_charges_created_total"})
	onChain := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_onchain_payments_total"})
	payFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_payment_failures_total"})
	tokensMinted := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_tokens_minted_total"})
	mintFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "checkout_mint_batches_failed_total"})
	mintSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_mint_batch_seconds",
		Buckets: prometheus.DefBuckets,
	})
	accessGranted := prometheus.NewCounter(prometheus.CounterOpts{Name: "access_checks_granted_total"})
	accessDenied := prometheus.NewCounter(prometheus.CounterOpts{Name: "access_checks_denied_total"})

	r.MustRegister(ordersAssembled, chargesCreated, onChain, payFailures,
		tokensMinted, mintFailures, mintSec, accessGranted, accessDenied)
	return &Registry{
		reg:               r,
		OrdersAssembled:   ordersAssembled,
		ChargesCreated:    chargesCreated,
		OnChainPayments:   onChain,
		PaymentFailures:   payFailures,
		TokensMinted:      tokensMinted,
		MintBatchFailures: mintFailures,
		MintBatchSec:      mintSec,
		AccessGranted:     accessGranted,
		AccessDenied:      accessDenied,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
