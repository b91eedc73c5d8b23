// Copyright 2024 The Vigil Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline wires the lock-free hand-off from capture to worker:
// capture callback -> SPSC ring -> decode -> flow update -> reassembly
// -> detect -> alert, plus a stats sampler and graceful drain on
// shutdown.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/alert"
	"github.com/vigilnet/vigil/internal/capture"
	"github.com/vigilnet/vigil/internal/decode"
	"github.com/vigilnet/vigil/internal/detect"
	"github.com/vigilnet/vigil/internal/flow"
	"github.com/vigilnet/vigil/internal/mpscqueue"
	"github.com/vigilnet/vigil/internal/reassembly"
	"github.com/vigilnet/vigil/internal/ring"
	"github.com/vigilnet/vigil/internal/timerheap"
)

// pushSpinBudget bounds how long the capture callback spins on a full
// ring before dropping the frame.
const pushSpinBudget = 5 * time.Millisecond

const pushBackoff = 100 * time.Microsecond

// popBackoff is the consumer's micro-sleep when the ring is empty and
// the pipeline isn't draining.
const popBackoff = time.Millisecond

// streamState pairs a reassembly stream with the timerheap item
// scheduling its idle sweep.
type streamState struct {
	stream   *reassembly.Stream
	heapItem *timerheap.Item
	id       uint64
}

// Pipeline is the single-worker inspection engine. All mutable state
// except the ring, Stats, and the shutdown flags is worker-owned and
// unsynchronized.
type Pipeline struct {
	source       capture.Source
	decisionSink DecisionSink
	filter       *PacketFilter
	sink         alert.Sink
	log          *zap.SugaredLogger

	ring  *ring.SPSC[capture.Frame]
	flows *flow.Table

	streams    map[flow.Key]*streamState
	streamKeys map[uint64]flow.Key // timerheap item key -> flow
	nextID     uint64
	sweep      *timerheap.Heap

	engine    *detect.Engine
	anomaly   *detect.AnomalyAnalyzer
	anomalyOn bool

	alertQueue *mpscqueue.Queue[alert.Alert]

	stats Stats

	// shutdown proceeds in order: done is the operator's signal, then
	// capture stops, then the worker finishes the ring, then the alert
	// writer drains the queue
	done        atomic.Bool
	captureDone atomic.Bool
	workerDone  atomic.Bool
	stop        chan struct{}

	wg sync.WaitGroup
}

// Options configures a Pipeline.
type Options struct {
	RingBufferSize int
	FlowTableSize  int
	AnomalyEnabled bool
}

// New builds a Pipeline around source, a detection engine, and an alert
// sink. The flow table is wired to tear down reassembly streams and
// forget anomaly samples on eviction.
func New(opts Options, source capture.Source, engine *detect.Engine, sink alert.Sink, decisionSink DecisionSink, log *zap.SugaredLogger) *Pipeline {
	if opts.RingBufferSize <= 0 {
		opts.RingBufferSize = 1024
	}
	if opts.FlowTableSize <= 0 {
		opts.FlowTableSize = flow.DefaultCapacity
	}
	if decisionSink == nil {
		decisionSink = NoopDecisionSink{}
	}

	p := &Pipeline{
		source:       source,
		decisionSink: decisionSink,
		filter:       NewPacketFilter(),
		sink:         sink,
		log:          log,
		ring:         ring.New[capture.Frame](opts.RingBufferSize),
		flows:        flow.New(opts.FlowTableSize),
		streams:      map[flow.Key]*streamState{},
		streamKeys:   map[uint64]flow.Key{},
		sweep:        timerheap.New(),
		engine:       engine,
		anomaly:      detect.NewAnomalyAnalyzer(detect.DefaultAnomalyThresholds),
		anomalyOn:    opts.AnomalyEnabled,
		alertQueue:   mpscqueue.New[alert.Alert](),
		stop:         make(chan struct{}),
	}
	p.flows.OnEvict(p.onFlowEvicted)
	return p
}

// Filter exposes the packet filter for operator configuration before
// Run is called.
func (p *Pipeline) Filter() *PacketFilter { return p.filter }

// Stats returns a snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Snapshot { return p.stats.Snapshot() }

func (p *Pipeline) onFlowEvicted(key flow.Key, _ *flow.Entry) {
	if st, ok := p.streams[key]; ok {
		delete(p.streams, key)
		delete(p.streamKeys, st.id)
	}
	p.anomaly.Forget(key)
}

// Run starts capture, the worker, the stats sampler, and the alert
// writer, and blocks until ctx is cancelled or the capture source's
// Start returns. Either way it then signals done, stops capture, lets
// the worker finish the ring, and joins every goroutine before
// returning.
func (p *Pipeline) Run(ctx context.Context, statsInterval time.Duration, onStats func(Snapshot)) error {
	captureErr := make(chan error, 1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.source.Start(p.onFrame)
		p.captureDone.Store(true)
		captureErr <- err
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.workerLoop()
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.alertWriterLoop()
	}()

	if statsInterval > 0 && onStats != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.statsLoop(ctx, statsInterval, onStats)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-captureErr:
		if err != nil && p.log != nil {
			p.log.Errorw("capture adapter stopped with error", "error", err)
		}
	}

	p.done.Store(true)
	p.source.Stop()
	close(p.stop)
	p.wg.Wait()
	return nil
}

// onFrame is the capture callback: it spins on TryPush with a bounded
// budget, then drops the frame and increments a counter.
func (p *Pipeline) onFrame(f capture.Frame) {
	deadline := time.Now().Add(pushSpinBudget)
	for {
		if p.ring.TryPush(f) {
			return
		}
		if p.done.Load() || time.Now().After(deadline) {
			p.stats.FramesDropped.Add(1)
			return
		}
		time.Sleep(pushBackoff)
	}
}

// workerLoop dequeues frames and runs decode -> flow -> reassembly ->
// detect -> emit. It drains the ring after done is signalled before
// returning.
func (p *Pipeline) workerLoop() {
	defer p.workerDone.Store(true)
	for {
		f, ok := p.ring.TryPop()
		if !ok {
			if p.done.Load() && p.captureDone.Load() {
				return
			}
			p.sweepIdleStreams(time.Now())
			time.Sleep(popBackoff)
			continue
		}
		p.process(f)
	}
}

// process runs one frame through the decode chain, flow table,
// reassembly, and detection engine, emitting any resulting alerts.
func (p *Pipeline) process(f capture.Frame) {
	payload := f.Data
	if f.LinkType == capture.LinkEthernet {
		eth, err := decode.DecodeEthernet(payload)
		if err != nil {
			p.stats.DecodeFailures.Add(1)
			return
		}
		if eth.EtherType != decode.EtherTypeIPv4 {
			return // only IPv4 is admitted
		}
		payload = eth.Payload
	}

	ip, err := decode.DecodeIPv4(payload)
	if err != nil {
		p.stats.DecodeFailures.Add(1)
		return
	}

	var srcPort, dstPort uint16
	var appPayload []byte
	var seq uint32
	isTCP := false

	switch ip.Protocol {
	case decode.ProtoTCP:
		tcp, err := decode.DecodeTCP(ip.Payload)
		if err != nil {
			p.stats.DecodeFailures.Add(1)
			return
		}
		srcPort, dstPort = tcp.SrcPort, tcp.DstPort
		appPayload = tcp.Payload
		seq = tcp.Seq
		isTCP = true
	case decode.ProtoUDP:
		udp, err := decode.DecodeUDP(ip.Payload)
		if err != nil {
			p.stats.DecodeFailures.Add(1)
			return
		}
		srcPort, dstPort = udp.SrcPort, udp.DstPort
		appPayload = udp.Payload
	default:
		appPayload = ip.Payload
	}

	if !p.filter.Admit(ip.Protocol, srcPort, dstPort) {
		return
	}

	key := flow.Key{SrcIP: ip.SrcIP, DstIP: ip.DstIP, SrcPort: srcPort, DstPort: dstPort, Protocol: ip.Protocol}
	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	entry := p.flows.Touch(key, now)
	p.flows.AddBytes(key, uint64(len(appPayload)))
	p.stats.PacketsProcessed.Add(1)

	if p.anomalyOn && p.anomaly.Observe(key, entry, now) {
		p.emit(detect.AnomalySignatureID, detect.AnomalyMessage, key, now, nil)
	}

	if dstPort == 53 || srcPort == 53 {
		if dns, err := decode.DecodeDNS(appPayload); err == nil && p.log != nil {
			for _, q := range dns.Questions {
				p.log.Debugw("dns question observed", "name", q.Name, "type", q.Type)
			}
		}
	}

	if isTCP && decode.LooksLikeHTTP(appPayload) {
		if req, ok := decode.DecodeHTTPRequest(appPayload); ok && p.log != nil {
			p.log.Debugw("http request observed", "method", req.Method, "path", req.Path)
		}
	}

	var scanPayload []byte
	if isTCP {
		st := p.streamFor(key, now)
		st.stream.AddSegment(seq, appPayload, now)
		if !st.stream.HasNewData() {
			return
		}
		scanPayload = st.stream.GetReassembledData()
		st.stream.MarkDataConsumed()
	} else {
		scanPayload = appPayload
	}

	if len(scanPayload) == 0 {
		return
	}
	for _, m := range p.engine.Match(scanPayload, key) {
		p.emit(m.Rule.ID, m.Rule.Message, key, now, m.Context)
	}
}

// streamFor returns the reassembly stream for key, creating one (and
// scheduling its idle sweep on the timerheap) if this is the first TCP
// segment seen for the flow.
func (p *Pipeline) streamFor(key flow.Key, now time.Time) *streamState {
	if st, ok := p.streams[key]; ok {
		return st
	}
	p.nextID++
	st := &streamState{stream: reassembly.NewStream(), id: p.nextID}
	st.heapItem = p.sweep.Push(now.Add(reassembly.SegmentIdleTimeout).UnixNano(), st.id)
	p.streams[key] = st
	p.streamKeys[st.id] = key
	return st
}

// emit constructs and dispatches an Alert for a detection (signature
// match or anomaly), funneling it through the MPSC alert queue to the
// single alert-writer goroutine.
func (p *Pipeline) emit(signatureID int, message string, key flow.Key, now time.Time, context []byte) {
	a := alert.FromMatch(now, signatureID, message, key, context)
	p.alertQueue.Push(a)
	p.stats.AlertsGenerated.Add(1)
}

// alertWriterLoop is the single consumer of the alert MPSC queue: it
// writes each alert to the sink and hands it to the decision sink.
// Today the worker is the only producer; the queue keeps the shape a
// multi-worker build would need.
func (p *Pipeline) alertWriterLoop() {
	for {
		a, ok := p.alertQueue.TryPop()
		if !ok {
			// the worker is the only producer, so once it has returned
			// an empty queue really is drained
			if p.workerDone.Load() {
				return
			}
			time.Sleep(popBackoff)
			continue
		}
		if err := p.sink.Emit(a); err != nil && p.log != nil {
			p.log.Errorw("alert sink failed", "error", err)
		}
		p.decisionSink.Enforce(a)
	}
}

// statsLoop samples Stats every interval and hands the snapshot to
// onStats.
func (p *Pipeline) statsLoop(ctx context.Context, interval time.Duration, onStats func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			onStats(p.stats.Snapshot())
		}
	}
}

// sweepIdleStreams pops every expired timerheap item, sweeps the
// corresponding stream's stale pending segments, and reschedules the
// sweep while the stream still holds pending data. Runs on the worker
// goroutine, which owns the stream table.
func (p *Pipeline) sweepIdleStreams(now time.Time) {
	for _, item := range p.sweep.PopExpired(now.UnixNano()) {
		key, ok := p.streamKeys[item.Key]
		if !ok {
			continue // flow already evicted
		}
		st, ok := p.streams[key]
		if !ok {
			delete(p.streamKeys, item.Key)
			continue
		}
		st.stream.Sweep(now)
		if st.stream.PendingLen() > 0 {
			st.heapItem = p.sweep.Push(now.Add(reassembly.SegmentIdleTimeout).UnixNano(), st.id)
		}
	}
}
