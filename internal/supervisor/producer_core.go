package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/internal/workqueue"
)

// ProducerConfig configures a ProducerCore.
type ProducerConfig struct {
	ConfirmMode           bool
	PublishConfirmTimeout time.Duration
	// PublishQueueCeiling bounds how many publishes may be unsettled at
	// once: queued, dispatched, or awaiting a confirm. A slot frees when
	// the publish's promise settles. Zero means unbounded.
	PublishQueueCeiling int
	Logger              logging.Logger
}

type publishItem struct {
	ctx        context.Context
	exchange   string
	routingKey string
	mandatory  bool
	msg        transport.OutboundMessage
	messageID  string
	promise    *workqueue.WorkItem[struct{}]
	timer      *time.Timer

	// feedClaimed guards the handoff between the feeder goroutine (which
	// has already dequeued this item from publishQueue) and either the
	// pump goroutine's dispatch or OnActive's own shutdown recovery.
	// Whichever of the two locks ProducerCore.mu first and flips this to
	// true owns the item; the other must leave it alone. Guarded by
	// ProducerCore.mu, not its own lock.
	feedClaimed bool
}

type pumpEventKind int

const (
	pumpPublish pumpEventKind = iota
	pumpAck
	pumpNack
	pumpReturn
)

type pumpEvent struct {
	kind    pumpEventKind
	publish *publishItem
	confirm transport.Confirmation
	ret     transport.Return
}

// ProducerCore is the per-channel publishing pipeline: user Publish →
// PublishQueue → the channel's serial pump → broker → confirm match →
// promise settlement (spec §4.7).
type ProducerCore struct {
	identity Identity
	channel  *ChannelSupervisor
	cfg      ProducerConfig

	publishQueue *workqueue.AutoCancellingQueue[*publishItem]
	sendGate     chan struct{}

	mu          sync.Mutex
	disposed    bool
	generation  Generation
	outstanding map[uint64]*publishItem
	byMessageID map[string]*publishItem
	ackEvents   *workqueue.WorkQueue[pumpEvent]
	// feedQueue holds, in the order the feeder goroutine dequeued them
	// from publishQueue, every item that has left publishQueue for this
	// generation but has not yet been claimed by dispatch. It lets
	// OnActive's shutdown path recover items the feeder already pulled
	// off publishQueue but the pump never got to, instead of losing them
	// to a discarded per-generation event queue.
	feedQueue []*publishItem
}

// NewProducerCore wires a ProducerCore to a fresh ChannelSupervisor
// bound to conn. Call Start to begin publishing.
func NewProducerCore(conn *ConnectionSupervisor, cfg ProducerConfig, channelCfg ChannelConfig) *ProducerCore {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
	p := &ProducerCore{
		identity:     NewIdentity("producer"),
		cfg:          cfg,
		publishQueue: workqueue.NewAutoCancellingQueue[*publishItem](),
	}
	if cfg.PublishQueueCeiling > 0 {
		p.sendGate = make(chan struct{}, cfg.PublishQueueCeiling)
	}
	p.channel = NewChannelSupervisor(conn, p, channelCfg)
	return p
}

// Identity returns this producer's log-correlation identifier.
func (p *ProducerCore) Identity() Identity { return p.identity }

// Start begins opening the underlying channel.
func (p *ProducerCore) Start() { p.channel.Start() }

// Dispose tears the producer and its channel down permanently, failing
// every still-undispatched publish with errs.ErrDisposed.
func (p *ProducerCore) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.mu.Unlock()

	p.channel.Dispose()
	p.publishQueue.Close()
	for {
		drainCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		pi, err := p.publishQueue.Take(drainCtx)
		cancel()
		if err != nil {
			return
		}
		pi.promise.Fail(errs.ErrDisposed)
	}
}

// Publish enqueues msg for delivery to exchange/routingKey. The
// returned promise settles per the contract in spec §4.7.
func (p *ProducerCore) Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg transport.OutboundMessage) *workqueue.WorkItem[struct{}] {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		item := workqueue.New[struct{}]()
		item.Fail(errs.ErrDisposed)
		return item
	}

	if msg.Properties.MessageID == "" {
		msg.Properties.MessageID = uuid.NewString()
	}

	promise := workqueue.New[struct{}]()
	pi := &publishItem{
		ctx:        ctx,
		exchange:   exchange,
		routingKey: routingKey,
		mandatory:  mandatory,
		msg:        msg,
		messageID:  msg.Properties.MessageID,
		promise:    promise,
	}

	go func() {
		select {
		case <-ctx.Done():
			promise.MarkCanceled()
		case <-promise.Done():
		}
	}()

	if p.sendGate != nil {
		select {
		case p.sendGate <- struct{}{}:
			go func() {
				<-promise.Done()
				<-p.sendGate
			}()
		case <-ctx.Done():
			promise.MarkCanceled()
			return promise
		}
	}

	p.publishQueue.Put(ctx, pi)
	return promise
}

// --- ChannelHandler ---

func (p *ProducerCore) OnConnecting(ctx context.Context) { <-ctx.Done() }

func (p *ProducerCore) OnActive(model transport.Channel, generation Generation, ctx context.Context) {
	if p.cfg.ConfirmMode {
		if err := model.Confirm(false); err != nil {
			p.cfg.Logger.Warn("confirm select failed", "identity", p.identity.String(), "error", err)
		}
	}

	ackEvents := workqueue.NewWorkQueue[pumpEvent]()
	publishEvents := workqueue.NewWorkQueue[pumpEvent]()
	composite := workqueue.NewCompositeWorkQueue[pumpEvent](ackEvents, publishEvents)

	p.mu.Lock()
	p.generation = generation
	p.outstanding = map[uint64]*publishItem{}
	p.byMessageID = map[string]*publishItem{}
	p.ackEvents = ackEvents
	p.feedQueue = nil
	p.mu.Unlock()

	feederDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(feederDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			pi, err := p.publishQueue.Take(ctx)
			if err != nil {
				return
			}
			p.mu.Lock()
			p.feedQueue = append(p.feedQueue, pi)
			p.mu.Unlock()
			publishEvents.Put(pumpEvent{kind: pumpPublish, publish: pi})
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			ev, err := composite.Take(ctx)
			if err != nil {
				return
			}
			p.applyPumpEvent(ctx, model, ev)
		}
	}()

	<-ctx.Done()
	<-feederDone
	<-pumpDone

	p.mu.Lock()
	p.ackEvents = nil
	outstanding := p.outstanding
	p.outstanding = nil
	p.byMessageID = nil
	feedQueue := p.feedQueue
	p.feedQueue = nil
	var unfed []*publishItem
	for _, pi := range feedQueue {
		if pi.feedClaimed {
			continue
		}
		pi.feedClaimed = true
		unfed = append(unfed, pi)
	}
	p.mu.Unlock()

	// Recover every item that left publishQueue for this generation but
	// never got a delivery tag: dispatched-and-awaiting-confirm items
	// (outstanding, ordered by ascending tag, i.e. dispatch order) ahead
	// of items the feeder had already pulled off publishQueue but the
	// pump never dispatched (unfed, already in feed order). PutRetry
	// pushes to the head of publishQueue, so replaying this list in
	// reverse restores the original order at the front of the queue.
	tags := make([]uint64, 0, len(outstanding))
	for tag := range outstanding {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	pending := make([]*publishItem, 0, len(tags)+len(unfed))
	for _, tag := range tags {
		pending = append(pending, outstanding[tag])
	}
	pending = append(pending, unfed...)

	for i := len(pending) - 1; i >= 0; i-- {
		p.requeueForRetry(pending[i])
	}
}

func (p *ProducerCore) requeueForRetry(pi *publishItem) {
	if pi.timer != nil {
		pi.timer.Stop()
	}
	if pi.promise.State() != workqueue.Pending {
		return
	}
	retryCtx := pi.ctx
	if retryCtx == nil {
		retryCtx = context.Background()
	}
	if !p.publishQueue.PutRetry(retryCtx, pi) {
		pi.promise.Fail(errs.ErrDisposed)
	}
}

func (p *ProducerCore) applyPumpEvent(ctx context.Context, model transport.Channel, ev pumpEvent) {
	switch ev.kind {
	case pumpPublish:
		p.dispatch(ctx, model, ev.publish)
	case pumpAck:
		p.resolveConfirm(ev.confirm, true)
	case pumpNack:
		p.resolveConfirm(ev.confirm, false)
	case pumpReturn:
		p.resolveReturn(ev.ret)
	}
}

func (p *ProducerCore) dispatch(ctx context.Context, model transport.Channel, pi *publishItem) {
	p.mu.Lock()
	if pi.feedClaimed {
		p.mu.Unlock()
		return
	}
	pi.feedClaimed = true
	p.mu.Unlock()

	if pi.promise.State() != workqueue.Pending {
		return
	}
	if ctx.Err() != nil {
		p.requeueForRetry(pi)
		return
	}
	tag, err := model.Publish(pi.ctx, pi.exchange, pi.routingKey, pi.mandatory, pi.msg)
	if err != nil {
		pi.promise.Fail(&errs.PublishError{MessageID: pi.messageID, Err: err})
		return
	}

	p.mu.Lock()
	p.byMessageID[pi.messageID] = pi
	if !p.cfg.ConfirmMode {
		p.mu.Unlock()
		pi.promise.Succeed(struct{}{})
		return
	}
	p.outstanding[tag] = pi
	if p.cfg.PublishConfirmTimeout > 0 {
		pi.timer = time.AfterFunc(p.cfg.PublishConfirmTimeout, func() { p.timeoutConfirm(tag) })
	}
	p.mu.Unlock()
}

func (p *ProducerCore) timeoutConfirm(tag uint64) {
	p.mu.Lock()
	pi, ok := p.outstanding[tag]
	if ok {
		delete(p.outstanding, tag)
		delete(p.byMessageID, pi.messageID)
	}
	p.mu.Unlock()
	if ok {
		pi.promise.Fail(errs.ErrPublishTimeout)
	}
}

func (p *ProducerCore) resolveConfirm(c transport.Confirmation, ack bool) {
	p.mu.Lock()
	var matched []*publishItem
	if c.Multiple {
		for tag, pi := range p.outstanding {
			if tag <= c.DeliveryTag {
				matched = append(matched, pi)
				delete(p.outstanding, tag)
				delete(p.byMessageID, pi.messageID)
			}
		}
	} else if pi, ok := p.outstanding[c.DeliveryTag]; ok {
		matched = append(matched, pi)
		delete(p.outstanding, c.DeliveryTag)
		delete(p.byMessageID, pi.messageID)
	}
	p.mu.Unlock()

	for _, pi := range matched {
		if pi.timer != nil {
			pi.timer.Stop()
		}
		if ack {
			pi.promise.Succeed(struct{}{})
		} else {
			pi.promise.Fail(errs.ErrNacked)
		}
	}
}

func (p *ProducerCore) resolveReturn(ret transport.Return) {
	p.mu.Lock()
	pi, ok := p.byMessageID[ret.Properties.MessageID]
	if ok {
		delete(p.byMessageID, ret.Properties.MessageID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if pi.timer != nil {
		pi.timer.Stop()
	}
	pi.promise.Fail(errs.ErrReturned)
}

func (p *ProducerCore) OnBasicAck(tag uint64, multiple bool) {
	p.pushAckEvent(pumpEvent{kind: pumpAck, confirm: transport.Confirmation{DeliveryTag: tag, Multiple: multiple}})
}

func (p *ProducerCore) OnBasicNack(tag uint64, multiple bool) {
	p.pushAckEvent(pumpEvent{kind: pumpNack, confirm: transport.Confirmation{DeliveryTag: tag, Multiple: multiple}})
}

func (p *ProducerCore) OnBasicReturn(ret transport.Return) {
	p.pushAckEvent(pumpEvent{kind: pumpReturn, ret: ret})
}

func (p *ProducerCore) pushAckEvent(ev pumpEvent) {
	p.mu.Lock()
	q := p.ackEvents
	p.mu.Unlock()
	if q != nil {
		q.Put(ev)
	}
}

func (p *ProducerCore) OnDisposed() {}
