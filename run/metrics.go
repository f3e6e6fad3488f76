package run

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	configLoadSuccessCounter prometheus.Counter
	configLoadFailureCounter prometheus.Counter
)

func init() {
	opts := prometheus.CounterOpts{}
	opts.Name = "peer_forwarder_config_loads_total"
	opts.Help = "Numbers of config file loads"
	vec := prometheus.NewCounterVec(opts, []string{"status"})
	prometheus.MustRegister(vec)

	configLoadSuccessCounter = vec.WithLabelValues("success")
	configLoadFailureCounter = vec.WithLabelValues("failure")
}
