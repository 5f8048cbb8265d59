package dbg_test

import (
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"

	"github.com/nativedbg/core"
)

func TestEvent(t *testing.T) { RunTests(t) }

type EventTest struct {
	b *dbg.Broadcaster
}

func init() { RegisterTestSuite(&EventTest{}) }

func (t *EventTest) SetUp(ti *TestInfo) {
	t.b = dbg.NewBroadcaster("test")
}

func (t *EventTest) DeliversToMatchingListener() {
	l := t.b.NewListener(dbg.EventStdout)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStdout, Bytes: &dbg.BytesPayload{Data: []byte("hi")}}, false)

	e, ok := l.Wait(time.Second)
	AssertTrue(ok)
	ExpectEq("test", e.BroadcasterName)
	ExpectEq("hi", string(e.Bytes.Data))
}

func (t *EventTest) SkipsNonMatchingListener() {
	l := t.b.NewListener(dbg.EventStderr)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStdout}, false)

	_, ok := l.Wait(20 * time.Millisecond)
	ExpectFalse(ok)
}

func (t *EventTest) RemovedListenerStopsReceiving() {
	l := t.b.NewListener(dbg.EventStdout)
	t.b.RemoveListener(l)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStdout}, false)

	_, ok := l.Wait(20 * time.Millisecond)
	ExpectFalse(ok)
}

func (t *EventTest) UniqueSuppressesDuplicateBeforeDrain() {
	l := t.b.NewListener(dbg.EventStateChanged)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStateChanged}, true)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStateChanged}, true)

	_, ok := l.Wait(time.Second)
	AssertTrue(ok)

	_, ok = l.Wait(20 * time.Millisecond)
	ExpectFalse(ok)
}

func (t *EventTest) UniqueAllowsNextAfterDrain() {
	l := t.b.NewListener(dbg.EventStateChanged)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStateChanged}, true)

	_, ok := l.Wait(time.Second)
	AssertTrue(ok)

	t.b.Broadcast(dbg.Event{Type: dbg.EventStateChanged}, true)
	_, ok = l.Wait(time.Second)
	ExpectTrue(ok)
}

func (t *EventTest) FIFOOrderingPerListener() {
	l := t.b.NewListener(dbg.EventStdout)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStdout, Bytes: &dbg.BytesPayload{Data: []byte("1")}}, false)
	t.b.Broadcast(dbg.Event{Type: dbg.EventStdout, Bytes: &dbg.BytesPayload{Data: []byte("2")}}, false)

	e1, ok := l.Wait(time.Second)
	AssertTrue(ok)
	e2, ok := l.Wait(time.Second)
	AssertTrue(ok)

	ExpectEq("1", string(e1.Bytes.Data))
	ExpectEq("2", string(e2.Bytes.Data))
}
