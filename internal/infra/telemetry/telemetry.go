package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	serviceInfo *prometheus.GaugeVec
}

// Attach registers service-level metadata metrics and returns a provider
// handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	info := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "idp",
		Name:      "service_info",
		Help:      "Static service metadata, always 1.",
	}, []string{"service", "environment"})

	info.WithLabelValues(cfg.Telemetry.ServiceName, cfg.App.Env).Set(1)

	return &Provider{serviceInfo: info}, nil
}
