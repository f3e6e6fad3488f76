package run

import (
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/util"
)

// RecordSink takes records received from peers for processing by the owning plugin
type RecordSink interface {
	Consume(pipelineName string, pluginID string, records []*base.Record)
}

// drainWorker polls the receive buffer of one plugin instance until stopped
//
// On stop request it drains the buffer one last time before signaling stopped
type drainWorker struct {
	logger        logger.Logger
	pipelineName  string
	pluginID      string
	forwarder     base.PeerForwarder
	sink          RecordSink
	stopRequest   channels.Awaitable
	stopped       *channels.SignalAwaitable
	drainedTotal  promext.RWCounter
	batchesTotal  promext.RWCounter
	retryInterval time.Duration
}

func newDrainWorker(parentLogger logger.Logger, pipelineName string, pluginID string, forwarder base.PeerForwarder,
	sink RecordSink, stopRequest channels.Awaitable, metricCreator promreg.MetricCreator,
) base.PipelineWorker {
	workerMetricCreator := metricCreator.AddOrGetPrefix("drain_", []string{defs.LabelPipeline, defs.LabelPlugin}, []string{pipelineName, pluginID})
	return &drainWorker{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "DrainWorker",
			defs.LabelPipeline:  pipelineName,
			defs.LabelPlugin:    pluginID,
		}),
		pipelineName:  pipelineName,
		pluginID:      pluginID,
		forwarder:     forwarder,
		sink:          sink,
		stopRequest:   stopRequest,
		stopped:       channels.NewSignalAwaitable(),
		drainedTotal:  workerMetricCreator.AddOrGetCounter("records_total", "Numbers of received records passed to processing", nil, nil),
		batchesTotal:  workerMetricCreator.AddOrGetCounter("batches_total", "Numbers of received batches passed to processing", nil, nil),
		retryInterval: defs.DrainReadTimeout,
	}
}

func (worker *drainWorker) Start() {
	go worker.run()
}

func (worker *drainWorker) Stopped() channels.Awaitable {
	return worker.stopped
}

func (worker *drainWorker) run() {
	defer worker.stopped.Signal()
	sig := worker.stopRequest.Channel()
	timer := time.NewTimer(worker.retryInterval)
	defer timer.Stop()
	for {
		if worker.drainOnce() > 0 {
			continue
		}
		util.ResetTimer(timer, worker.retryInterval)
		select {
		case <-sig:
			numFinal := 0
			for n := worker.drainOnce(); n > 0; n = worker.drainOnce() {
				numFinal += n
			}
			worker.logger.Infof("stopped after final drain of %d records", numFinal)
			return
		case <-timer.C:
		}
	}
}

func (worker *drainWorker) drainOnce() int {
	records := worker.forwarder.ReceiveRecords()
	if len(records) == 0 {
		return 0
	}
	worker.sink.Consume(worker.pipelineName, worker.pluginID, records)
	worker.drainedTotal.Add(uint64(len(records)))
	worker.batchesTotal.Inc()
	return len(records)
}

// logSink logs received batches, used when no processing is attached
type logSink struct {
	logger logger.Logger
}

func (sink *logSink) Consume(pipelineName string, pluginID string, records []*base.Record) {
	sink.logger.Debugf("%s/%s: received %d records from peers", pipelineName, pluginID, len(records))
}
