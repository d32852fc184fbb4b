package condition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Option customizes a Registry at build time.
type Option func(*Registry)

// WithObservability routes logs and metrics to obs.
func WithObservability(obs ports.Observability) Option {
	return func(r *Registry) {
		if obs != nil {
			r.obs = obs
		}
	}
}

// WithPublisher journals every root transition through p.
func WithPublisher(p ports.EventPublisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// ActiveCondition describes a root condition that is currently true.
type ActiveCondition struct {
	ID    int       `json:"id"`
	Name  string    `json:"name"`
	Since time.Time `json:"since"`
}

// Registry owns the condition graph and the set of true root conditions.
// It is shared by every sensor.
//
// mu guards the arena and serializes propagation. A propagation that
// produced transitions takes a dispatch ticket before releasing mu, and
// transitions are fired in ticket order outside mu, so firing order follows
// propagation order while slow actions never hold up other sensors.
// stateMu lets readers query the true set without waiting on propagation.
type Registry struct {
	mu     sync.Mutex
	leaves []leaf
	nodes  []node
	roots  map[int]*Root
	order  []int

	turns sequencer

	stateMu sync.RWMutex
	trueIDs map[int]time.Time

	obs       ports.Observability
	publisher ports.EventPublisher
	now       func() time.Time
	newID     func() string
}

type transition struct {
	root   *Root
	raised bool
	at     time.Time
}

// Update evaluates the given leaves against a new field value and propagates
// every flip up the graph. Leaves whose status does not change cause no work.
// sensorID attributes resulting events.
func (r *Registry) Update(ctx context.Context, sensorID int, leaves []Ref, v domain.Value) {
	if len(leaves) == 0 {
		return
	}

	r.mu.Lock()
	var fired []transition
	for _, ref := range leaves {
		if ref.kind != refLeaf || ref.idx < 0 || ref.idx >= len(r.leaves) {
			r.obs.LogError("condition_bad_ref", fmt.Errorf("%s is not a leaf", ref),
				ports.F("sensor_id", sensorID))
			continue
		}
		l := &r.leaves[ref.idx]
		changed, err := l.evaluate(v)
		if err != nil {
			r.obs.IncCounter(ports.MetricKindMismatches, 1)
			r.obs.LogError("leaf_kind_mismatch", err,
				ports.F("sensor_id", sensorID),
				ports.F("field", l.field),
				ports.F("value", v.String()),
				ports.F("threshold", l.threshold.String()))
			continue
		}
		if !changed {
			continue
		}
		r.obs.LogDebug("leaf_changed",
			ports.F("sensor_id", sensorID),
			ports.F("field", l.field),
			ports.F("status", l.status))
		for _, p := range l.parents {
			r.onChildChanged(p, l.status, &fired)
		}
	}
	if len(fired) == 0 {
		r.mu.Unlock()
		return
	}

	ticket := r.turns.take()
	r.mu.Unlock()
	r.turns.wait(ticket)
	defer r.turns.done()

	for _, tr := range fired {
		r.dispatch(ctx, sensorID, tr)
	}
}

// RefireTrue invokes the actions of every currently true root condition, in
// ascending id order, and journals a reasserted event for each. It is used
// after a stale sensor was reverted to its defaults.
func (r *Registry) RefireTrue(ctx context.Context, sensorID int) {
	r.mu.Lock()
	ids := r.TrueIDs()
	ticket := r.turns.take()
	r.mu.Unlock()
	r.turns.wait(ticket)
	defer r.turns.done()

	for _, id := range ids {
		root := r.roots[id]
		ev := r.newEvent(domain.EventReasserted, root, sensorID, r.now())
		r.publish(ev)
		r.runActions(ctx, root, ev)
	}
}

// TrueIDs returns the ids of all true root conditions in ascending order.
func (r *Registry) TrueIDs() []int {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	ids := make([]int, 0, len(r.trueIDs))
	for id := range r.trueIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsTrue reports whether root condition id is currently true.
func (r *Registry) IsTrue(id int) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	_, ok := r.trueIDs[id]
	return ok
}

// Active lists the true root conditions with the time they turned true.
func (r *Registry) Active() []ActiveCondition {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	out := make([]ActiveCondition, 0, len(r.trueIDs))
	for id, since := range r.trueIDs {
		out = append(out, ActiveCondition{ID: id, Name: r.roots[id].Name, Since: since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RootIDs returns every configured root id in ascending order.
func (r *Registry) RootIDs() []int {
	return append([]int(nil), r.order...)
}

// Status reports the current truth value of a leaf or node.
func (r *Registry) Status(ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusOf(ref)
}

func (r *Registry) statusOf(ref Ref) bool {
	switch ref.kind {
	case refLeaf:
		if ref.idx >= 0 && ref.idx < len(r.leaves) {
			return r.leaves[ref.idx].status
		}
	case refNode:
		if ref.idx >= 0 && ref.idx < len(r.nodes) {
			return r.nodes[ref.idx].status
		}
	}
	return false
}

// evaluate reports whether the leaf status flipped.
func (l *leaf) evaluate(v domain.Value) (bool, error) {
	ok, err := l.op.Apply(v, l.threshold)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", l.field, err)
	}
	if ok == l.status {
		return false, nil
	}
	l.status = ok
	return true, nil
}

// onChildChanged is called once per real flip of a child of node idx.
// It only walks further up when the node's own status flips. Caller holds mu.
func (r *Registry) onChildChanged(idx int, childNowTrue bool, fired *[]transition) {
	n := &r.nodes[idx]
	if childNowTrue {
		n.trueCount++
	} else {
		n.trueCount--
	}
	status := n.rule.holds(n.trueCount, len(n.children))
	if status == n.status {
		return
	}
	n.status = status

	if len(n.roots) > 0 {
		at := r.now()
		for _, id := range n.roots {
			root := r.roots[id]
			r.markLocked(id, status, at)
			*fired = append(*fired, transition{root: root, raised: status, at: at})
		}
	}
	for _, p := range n.parents {
		r.onChildChanged(p, status, fired)
	}
}

func (r *Registry) markLocked(id int, status bool, at time.Time) {
	r.stateMu.Lock()
	if status {
		r.trueIDs[id] = at
	} else {
		delete(r.trueIDs, id)
	}
	active := len(r.trueIDs)
	r.stateMu.Unlock()
	r.obs.SetGauge(ports.GaugeActiveConditions, float64(active))
}

// dispatch journals a transition and, for a raise, runs the root's actions.
// Caller holds the current dispatch turn.
func (r *Registry) dispatch(ctx context.Context, sensorID int, tr transition) {
	kind := domain.EventCleared
	if tr.raised {
		kind = domain.EventRaised
	}
	ev := r.newEvent(kind, tr.root, sensorID, tr.at)
	r.obs.IncCounter(ports.MetricTransitions, 1)
	r.obs.LogInfo("condition_"+string(kind),
		ports.F("condition_id", tr.root.ID),
		ports.F("condition", tr.root.Name),
		ports.F("sensor_id", sensorID))
	r.publish(ev)
	if tr.raised {
		r.runActions(ctx, tr.root, ev)
	}
}

func (r *Registry) runActions(ctx context.Context, root *Root, ev *domain.Event) {
	for _, a := range root.Actions {
		if err := invoke(ctx, a, ev); err != nil {
			r.obs.IncCounter(ports.MetricActionFailures, 1)
			r.obs.LogError("action_failed", err,
				ports.F("condition_id", root.ID),
				ports.F("action", a.Name()))
			continue
		}
		r.obs.IncCounter(ports.MetricActionsFired, 1)
	}
}

func invoke(ctx context.Context, a ports.Action, ev *domain.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action %s panicked: %v", a.Name(), p)
		}
	}()
	return a.Execute(ctx, ev)
}

func (r *Registry) publish(ev *domain.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ev); err != nil {
		r.obs.IncCounter(ports.MetricEventsDropped, 1)
		r.obs.LogError("event_publish_failed", err,
			ports.F("event_id", ev.ID),
			ports.F("condition_id", ev.ConditionID))
	}
}

func (r *Registry) newEvent(kind domain.EventKind, root *Root, sensorID int, at time.Time) *domain.Event {
	return &domain.Event{
		ID:            r.newID(),
		Kind:          kind,
		ConditionID:   root.ID,
		ConditionName: root.Name,
		SensorID:      sensorID,
		Timestamp:     at,
	}
}

// sequencer lets dispatch turns proceed in the order their tickets were
// taken. The zero value is ready to use.
type sequencer struct {
	mu      sync.Mutex
	next    uint64
	serving uint64
	waiters map[uint64]chan struct{}
}

func (s *sequencer) take() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next++
	return t
}

// wait blocks until ticket t is being served.
func (s *sequencer) wait(t uint64) {
	s.mu.Lock()
	if t == s.serving {
		s.mu.Unlock()
		return
	}
	if s.waiters == nil {
		s.waiters = make(map[uint64]chan struct{})
	}
	ch := make(chan struct{})
	s.waiters[t] = ch
	s.mu.Unlock()
	<-ch
}

// done ends the current turn and wakes the next ticket holder, if waiting.
func (s *sequencer) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving++
	if ch, ok := s.waiters[s.serving]; ok {
		delete(s.waiters, s.serving)
		close(ch)
	}
}

// ErrUnknownCondition is returned when a root id is not registered.
var ErrUnknownCondition = errors.New("unknown root condition")

// Root returns the root condition registered under id.
func (r *Registry) Root(id int) (*Root, error) {
	root, ok := r.roots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCondition, id)
	}
	return root, nil
}
