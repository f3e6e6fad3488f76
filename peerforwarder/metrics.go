package peerforwarder

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/defs"
)

var forwardErrorReasons = []string{defs.ReasonNetwork, defs.ReasonTimeout, defs.ReasonStatus, defs.ReasonEncoding, defs.ReasonOther}

// forwarderMetrics defines metrics of one registered forwarder
type forwarderMetrics struct {
	localRecordsTotal     promext.RWCounter // Records kept local by ownership
	forwardedRecordsTotal promext.RWCounter // Records accepted by peers
	fallbackRecordsTotal  promext.RWCounter // Records failed to forward and processed locally
	forwardRequestsTotal  promext.RWCounter
	receivedRecordsTotal  promext.RWCounter // Records returned by ReceiveRecords
	forwardErrorsTotal    map[string]promext.RWCounter
}

func newForwarderMetrics(metricCreator promreg.MetricCreator) forwarderMetrics {
	errorsVec := metricCreator.AddOrGetCounterVec("forward_errors_total", "Numbers of failed forwarding requests by reason", []string{defs.LabelReason}, nil)
	metrics := forwarderMetrics{
		localRecordsTotal:     metricCreator.AddOrGetCounter("records_local_total", "Numbers of records owned by this node", nil, nil),
		forwardedRecordsTotal: metricCreator.AddOrGetCounter("records_forwarded_total", "Numbers of records forwarded to peers", nil, nil),
		fallbackRecordsTotal:  metricCreator.AddOrGetCounter("records_fallback_total", "Numbers of records failed to forward and processed locally", nil, nil),
		forwardRequestsTotal:  metricCreator.AddOrGetCounter("forward_requests_total", "Numbers of forwarding requests", nil, nil),
		receivedRecordsTotal:  metricCreator.AddOrGetCounter("records_received_total", "Numbers of records received from peers and taken for processing", nil, nil),
		forwardErrorsTotal:    make(map[string]promext.RWCounter, len(forwardErrorReasons)),
	}
	for _, reason := range forwardErrorReasons {
		metrics.forwardErrorsTotal[reason] = errorsVec.WithLabelValues(reason)
	}
	return metrics
}

func (metrics *forwarderMetrics) OnForwardError(reason string, numRecords int) {
	metrics.forwardErrorsTotal[reason].Inc()
	metrics.fallbackRecordsTotal.Add(uint64(numRecords))
}
