package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"sync"
	"testing"
	"time"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
	"Attendly/pkg/snowflake"
)

func TestMain(m *testing.M) {
	if err := snowflake.Init(2, 1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeGuard struct {
	mu        sync.Mutex
	messages  map[string]string
	criteria  map[[2]int64]bool
	claimErr  error
	unmarked  int
	completed int
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{messages: map[string]string{}, criteria: map[[2]int64]bool{}}
}

func (g *fakeGuard) TryMarkMessageProcessing(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimErr != nil {
		return false, g.claimErr
	}
	if _, ok := g.messages[id]; ok {
		return false, nil
	}
	g.messages[id] = "processing"
	return true, nil
}

func (g *fakeGuard) UnmarkMessageProcessing(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.messages, id)
	g.unmarked++
	return nil
}

func (g *fakeGuard) MarkMessageProcessed(ctx context.Context, id string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[id] = "completed"
	g.completed++
	return nil
}

func (g *fakeGuard) TryMarkCriteriaMet(ctx context.Context, eventID, registrationID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := [2]int64{eventID, registrationID}
	if g.criteria[k] {
		return false, nil
	}
	g.criteria[k] = true
	return true, nil
}

func (g *fakeGuard) UnmarkCriteriaMet(ctx context.Context, eventID, registrationID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.criteria, [2]int64{eventID, registrationID})
	return nil
}

type fakeEvaluator struct {
	snap *model.ProgressSnapshot
	err  error
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, registrationID int64) (*model.ProgressSnapshot, error) {
	return e.snap, e.err
}

type published struct {
	routingKey string
	body       interface{}
}

func newWatcher(eval Evaluator, guard Guard, sent *[]published, publishErr error) *CriteriaWatcher {
	w := NewCriteriaWatcher(eval, guard, "attendance.events")
	w.publish = func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
		if publishErr != nil {
			return publishErr
		}
		*sent = append(*sent, published{routingKey: routingKey, body: body})
		return nil
	}
	return w
}

func body(t *testing.T, id string) []byte {
	t.Helper()
	b, err := json.Marshal(model.MarkRecordedMessage{MessageID: id, EventID: 1, RegistrationID: 7, Status: model.MarkStatusPresent})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func meeting() *model.ProgressSnapshot {
	return &model.ProgressSnapshot{EventID: 1, RegistrationID: 7, AttendedUnits: 2, TotalUnits: 2, Percentage: 100, MeetsCriteria: true}
}

func TestCriteriaWatcherPublishesOnce(t *testing.T) {
	var sent []published
	guard := newFakeGuard()
	w := newWatcher(&fakeEvaluator{snap: meeting()}, guard, &sent, nil)
	ctx := context.Background()

	if err := w.Handle(ctx, body(t, "m1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := w.Handle(ctx, body(t, "m2")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("published %d criteria met messages, want 1", len(sent))
	}
	msg, ok := sent[0].body.(model.CriteriaMetMessage)
	if !ok || msg.RegistrationID != 7 || msg.Percentage != 100 || msg.MessageID == "" {
		t.Fatalf("published body = %+v", sent[0].body)
	}
}

func TestCriteriaWatcherSkipsDuplicates(t *testing.T) {
	var sent []published
	w := newWatcher(&fakeEvaluator{snap: meeting()}, newFakeGuard(), &sent, nil)

	_ = w.Handle(context.Background(), body(t, "m1"))
	err := w.Handle(context.Background(), body(t, "m1"))

	var skip *errors.SkipMessageError
	if !stderrors.As(err, &skip) {
		t.Fatalf("Handle() error = %v, want SkipMessageError", err)
	}
}

func TestCriteriaWatcherNotMeeting(t *testing.T) {
	var sent []published
	snap := meeting()
	snap.MeetsCriteria = false
	w := newWatcher(&fakeEvaluator{snap: snap}, newFakeGuard(), &sent, nil)

	if err := w.Handle(context.Background(), body(t, "m1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(sent) != 0 {
		t.Fatal("nothing should be published below the threshold")
	}
}

func TestCriteriaWatcherRetriesOnFailure(t *testing.T) {
	var sent []published
	guard := newFakeGuard()
	w := newWatcher(&fakeEvaluator{snap: meeting()}, guard, &sent, stderrors.New("channel closed"))

	if err := w.Handle(context.Background(), body(t, "m1")); err == nil {
		t.Fatal("publish failure should be returned for a requeue")
	}
	if guard.unmarked != 1 || guard.criteria[[2]int64{1, 7}] {
		t.Fatalf("marks should be rolled back, guard = %+v", guard)
	}

	// 重投后成功
	w.publish = func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
		sent = append(sent, published{routingKey: routingKey, body: body})
		return nil
	}
	if err := w.Handle(context.Background(), body(t, "m1")); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("published %d messages after redelivery", len(sent))
	}
}

func TestCriteriaWatcherDropsPermanentErrors(t *testing.T) {
	var sent []published
	guard := newFakeGuard()
	w := newWatcher(&fakeEvaluator{err: errors.Wrap(errors.AttendanceNotConfigured, "event 1")}, guard, &sent, nil)

	if err := w.Handle(context.Background(), body(t, "m1")); err != nil {
		t.Fatalf("Handle() error = %v, want ack", err)
	}
	if guard.completed != 1 {
		t.Fatal("message should be marked processed")
	}
}

func TestCriteriaWatcherMalformed(t *testing.T) {
	var sent []published
	w := newWatcher(&fakeEvaluator{snap: meeting()}, newFakeGuard(), &sent, nil)

	var skip *errors.SkipMessageError
	if err := w.Handle(context.Background(), []byte("{")); !stderrors.As(err, &skip) {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestMarkPublisher(t *testing.T) {
	var got struct {
		exchange, routingKey, id string
		body                     interface{}
	}
	p := NewMarkPublisher("attendance.events")
	p.publish = func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
		got.exchange, got.routingKey, got.id, got.body = exchange, routingKey, messageID, body
		return nil
	}

	mark := &model.AttendanceMark{ID: 3, PublicID: 99, EventID: 1, RegistrationID: 7, Status: model.MarkStatusPresent,
		MarkedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	if err := p.PublishMarkRecorded(context.Background(), mark); err != nil {
		t.Fatalf("PublishMarkRecorded() error = %v", err)
	}
	msg := got.body.(model.MarkRecordedMessage)
	if got.exchange != "attendance.events" || got.routingKey != "attendance.mark.recorded" {
		t.Fatalf("published to %s/%s", got.exchange, got.routingKey)
	}
	if msg.MessageID != got.id || msg.MarkID != 99 || msg.Sequence != 3 || msg.MarkedAt != "2026-03-14T09:00:00Z" {
		t.Fatalf("message = %+v", msg)
	}
}
