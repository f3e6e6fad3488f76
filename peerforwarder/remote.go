package peerforwarder

import (
	"context"
	"sync"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/buffer/receivebuffer"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/forwardclient"
	"github.com/relex/peer-forwarder/util"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// remoteForwarder partitions records by the owners of their identification key values
type remoteForwarder struct {
	logger         logger.Logger
	pipelineName   string
	pluginID       string
	ring           Ring
	client         Sender
	locality       *locality
	buffer         *receivebuffer.Buffer
	requestTimeout time.Duration
	metrics        forwarderMetrics
	extractorPool  *util.Pool[*base.FieldSetExtractor]
	shared         *sharedComponents
}

func newRemoteForwarder(parentLogger logger.Logger, pipelineName string, pluginID string, keys []string,
	shared *sharedComponents, buffer *receivebuffer.Buffer, requestTimeout time.Duration, metrics forwarderMetrics,
) *remoteForwarder {
	keysCopy := slices.Clone(keys)
	return &remoteForwarder{
		logger:         parentLogger,
		pipelineName:   pipelineName,
		pluginID:       pluginID,
		ring:           shared.ring,
		client:         shared.client,
		locality:       shared.locality,
		buffer:         buffer,
		requestTimeout: requestTimeout,
		metrics:        metrics,
		extractorPool: util.NewPool(func() *base.FieldSetExtractor {
			return base.NewFieldSetExtractor(keysCopy)
		}),
		shared: shared,
	}
}

// ForwardRecords sends records owned by other peers and returns local ones plus any which failed to be sent
//
// Each peer gets one request per call. Requests to different peers are sent concurrently and all are awaited.
// After the provider is shut down, all records are returned as local.
func (f *remoteForwarder) ForwardRecords(records []*base.Record) []*base.Record {
	if len(records) == 0 {
		return records
	}

	localRecords, remoteRecordsByPeer := f.partition(records)
	f.metrics.localRecordsTotal.Add(uint64(len(localRecords)))
	if len(remoteRecordsByPeer) == 0 {
		return localRecords
	}

	peers := maps.Keys(remoteRecordsByPeer)
	slices.Sort(peers)
	if !f.shared.beginRequests(len(peers)) {
		numLocal := len(localRecords)
		for _, peer := range peers {
			localRecords = append(localRecords, remoteRecordsByPeer[peer]...)
		}
		f.metrics.localRecordsTotal.Add(uint64(len(localRecords) - numLocal))
		return localRecords
	}
	failedBatches := make([][]*base.Record, len(peers))

	wg := sync.WaitGroup{}
	for i, peer := range peers {
		wg.Add(1)
		go func(index int, peer string, batch []*base.Record) {
			defer wg.Done()
			defer f.shared.endRequest()
			if !f.send(peer, batch) {
				failedBatches[index] = batch
			}
		}(i, peer, remoteRecordsByPeer[peer])
	}
	wg.Wait()

	for _, batch := range failedBatches {
		localRecords = append(localRecords, batch...)
	}
	return localRecords
}

// ReceiveRecords returns records currently in the receive buffer without waiting
func (f *remoteForwarder) ReceiveRecords() []*base.Record {
	return receiveFromBuffer(f.buffer, &f.metrics)
}

func (f *remoteForwarder) partition(records []*base.Record) ([]*base.Record, map[string][]*base.Record) {
	extractor := f.extractorPool.Get()
	defer f.extractorPool.Put(extractor)

	localRecords := make([]*base.Record, 0, len(records))
	var remoteRecordsByPeer map[string][]*base.Record
	for _, record := range records {
		owner, found := f.ring.GetOwner(extractor.Extract(record))
		if !found || f.locality.IsLocal(owner) {
			localRecords = append(localRecords, record)
			continue
		}
		if remoteRecordsByPeer == nil {
			remoteRecordsByPeer = make(map[string][]*base.Record)
		}
		remoteRecordsByPeer[owner] = append(remoteRecordsByPeer[owner], record)
	}
	return localRecords, remoteRecordsByPeer
}

func (f *remoteForwarder) send(peer string, batch []*base.Record) bool {
	ctx, cancel := context.WithTimeout(context.Background(), f.requestTimeout)
	defer cancel()

	f.metrics.forwardRequestsTotal.Inc()
	err := f.client.Send(ctx, batch, peer, f.pipelineName, f.pluginID)
	if err != nil {
		reason := forwardclient.ReasonOf(err)
		f.logger.WithFields(logger.Fields{
			defs.LabelPeer:   peer,
			defs.LabelReason: reason,
		}).Warnf("failed to forward %d records, processing locally: %s", len(batch), err.Error())
		f.metrics.OnForwardError(reason, len(batch))
		return false
	}
	f.metrics.forwardedRecordsTotal.Add(uint64(len(batch)))
	return true
}
