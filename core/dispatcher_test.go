package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/ops"
	"github.com/jdelaire/hostctl/core/policy"
)

const authorizedUser = 1

type slowOp struct {
	running atomic.Int32
	overlap atomic.Bool
	calls   atomic.Int32
}

func (s *slowOp) Name() string        { return "slow" }
func (s *slowOp) Description() string { return "slow op" }
func (s *slowOp) Privileged() bool    { return false }
func (s *slowOp) Execute(ctx context.Context, _ *ops.CommandContext) error {
	if s.running.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.running.Add(-1)
	s.calls.Add(1)
	select {
	case <-time.After(50 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type errorOp struct{}

func (e *errorOp) Name() string        { return "fail" }
func (e *errorOp) Description() string { return "always fails" }
func (e *errorOp) Execute(_ context.Context, _ *ops.CommandContext) error {
	return fmt.Errorf("something broke")
}

type panicOp struct{}

func (p *panicOp) Name() string        { return "panic" }
func (p *panicOp) Description() string { return "always panics" }
func (p *panicOp) Execute(_ context.Context, _ *ops.CommandContext) error {
	panic("nil map")
}

type testRig struct {
	dispatcher *Dispatcher
	spy        *spyReplier
	runner     *countingRunner
	texts      ops.Texts
}

func newTestDispatcher(t *testing.T, extraOps ...ops.Op) *testRig {
	t.Helper()
	texts := ops.DefaultTexts()
	spy := &spyReplier{}
	runner := &countingRunner{}

	reg := ops.NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(reg.Register(&ops.MenuOp{Registry: reg, Texts: texts}))
	must(reg.Register(&ops.StatusOp{Info: fixedInfo{}, Texts: texts}))
	for _, p := range ops.PowerOps(map[string]string{
		"sleep": "suspend", "hibernate": "hibernate", "shutdown": "poweroff", "restart": "reboot",
	}, runner, texts, testLogger(), noSleep) {
		must(reg.Register(p))
	}
	for _, op := range extraOps {
		must(reg.Register(op))
	}
	must(ops.BindLabels(reg, texts.Labels))

	pol := policy.New([]int64{authorizedUser})
	return &testRig{
		dispatcher: NewDispatcher(pol, reg, spy, texts, testLogger()),
		spy:        spy,
		runner:     runner,
		texts:      texts,
	}
}

var nextUpdateID atomic.Int64

func validMsg(text string) chat.Message {
	return chat.Message{
		UpdateID: nextUpdateID.Add(1),
		ChatID:   100,
		UserID:   authorizedUser,
		Text:     text,
		SentAt:   time.Now(),
	}
}

func TestDispatchStatus(t *testing.T) {
	rig := newTestDispatcher(t)

	rig.dispatcher.Dispatch(context.Background(), validMsg("/status"))

	if rig.spy.count() != 1 {
		t.Fatalf("sent %d, want 1", rig.spy.count())
	}
	got := rig.spy.last().text
	for _, want := range []string{"workstation", "AMD Ryzen 7 5800X", "11.3", "31.9", "0d 3h 0m 15s"} {
		if !strings.Contains(got, want) {
			t.Errorf("status reply %q missing %q", got, want)
		}
	}
}

func TestDispatchStaleMessage(t *testing.T) {
	rig := newTestDispatcher(t)

	msg := validMsg("/shutdown")
	msg.SentAt = time.Now().Add(-301 * time.Second)
	rig.dispatcher.Dispatch(context.Background(), msg)

	if rig.spy.count() != 1 {
		t.Fatalf("sent %d for stale message, want 1", rig.spy.count())
	}
	if got := rig.spy.last().text; got != rig.texts.RetryRequest {
		t.Errorf("text = %q, want retry request", got)
	}
	if rig.runner.count() != 0 {
		t.Errorf("stale message ran %d directives", rig.runner.count())
	}
}

func TestDispatchUnauthorizedShutdown(t *testing.T) {
	rig := newTestDispatcher(t)

	msg := validMsg("/shutdown")
	msg.UserID = 987654321
	rig.dispatcher.Dispatch(context.Background(), msg)

	if rig.spy.count() != 1 {
		t.Fatalf("sent %d, want 1", rig.spy.count())
	}
	if !strings.Contains(rig.spy.last().text, "987654321") {
		t.Errorf("text = %q, should disclose caller id", rig.spy.last().text)
	}
	if rig.runner.count() != 0 {
		t.Errorf("unauthorized caller ran %d directives", rig.runner.count())
	}
}

func TestDispatchEmptyAllowlistRejectsEverything(t *testing.T) {
	rig := newTestDispatcher(t)
	rig.dispatcher.policy = policy.New(nil)

	rig.dispatcher.Dispatch(context.Background(), validMsg("/status"))

	if !strings.Contains(rig.spy.last().text, fmt.Sprint(authorizedUser)) {
		t.Errorf("text = %q, want unauthorized reply", rig.spy.last().text)
	}
}

func TestDispatchUnauthorizedMayOpenMenu(t *testing.T) {
	rig := newTestDispatcher(t)

	msg := validMsg("/start")
	msg.UserID = 5
	rig.dispatcher.Dispatch(context.Background(), msg)

	if got := rig.spy.last(); got.kind != "keyboard" || got.buttons != 6 {
		t.Errorf("got %+v, want keyboard with 6 buttons", got)
	}
}

func TestDispatchUnknownTextShowsMenu(t *testing.T) {
	rig := newTestDispatcher(t)

	rig.dispatcher.Dispatch(context.Background(), validMsg("hello there"))
	rig.dispatcher.Dispatch(context.Background(), validMsg("/foobar"))

	sent := rig.spy.all()
	if len(sent) != 2 {
		t.Fatalf("sent %d, want 2", len(sent))
	}
	for _, o := range sent {
		if o.kind != "keyboard" {
			t.Errorf("kind = %q, want keyboard", o.kind)
		}
		if !strings.HasPrefix(o.text, rig.texts.Welcome) {
			t.Errorf("text = %q, want welcome", o.text)
		}
	}
}

func TestDispatchLabelAndCase(t *testing.T) {
	rig := newTestDispatcher(t)

	rig.dispatcher.Dispatch(context.Background(), validMsg(rig.texts.Labels.Sleep))
	rig.dispatcher.Dispatch(context.Background(), validMsg("/RESTART"))

	if rig.runner.count() != 2 {
		t.Fatalf("ran %d directives, want 2", rig.runner.count())
	}
	if rig.runner.directives[0] != "suspend" || rig.runner.directives[1] != "reboot" {
		t.Errorf("directives = %v", rig.runner.directives)
	}
}

func TestDispatchDuplicateUpdate(t *testing.T) {
	rig := newTestDispatcher(t)

	msg := validMsg("/status")
	rig.dispatcher.Dispatch(context.Background(), msg)
	rig.dispatcher.Dispatch(context.Background(), msg)

	if rig.spy.count() != 1 {
		t.Errorf("sent %d for duplicate update, want 1", rig.spy.count())
	}
}

func TestDispatchOpError(t *testing.T) {
	rig := newTestDispatcher(t, &errorOp{})

	rig.dispatcher.Dispatch(context.Background(), validMsg("/fail"))

	if rig.spy.count() != 1 {
		t.Fatalf("sent %d, want 1", rig.spy.count())
	}
	got := rig.spy.last().text
	if got != rig.texts.Error {
		t.Errorf("text = %q, want generic error", got)
	}
	if strings.Contains(got, "something broke") {
		t.Errorf("internal detail leaked to chat: %q", got)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	rig := newTestDispatcher(t, &panicOp{})

	rig.dispatcher.Dispatch(context.Background(), validMsg("/panic"))

	if got := rig.spy.last().text; got != rig.texts.Error {
		t.Errorf("text = %q, want generic error", got)
	}
}

func TestDispatchSerializesExecution(t *testing.T) {
	slow := &slowOp{}
	rig := newTestDispatcher(t, slow)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			msg := validMsg("/slow")
			msg.ChatID = chatID
			rig.dispatcher.Dispatch(context.Background(), msg)
		}(int64(i))
	}
	wg.Wait()

	if slow.calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", slow.calls.Load())
	}
	if slow.overlap.Load() {
		t.Error("op executions overlapped")
	}
}

func TestDispatchCancelledWhileWaitingForGate(t *testing.T) {
	rig := newTestDispatcher(t)
	rig.dispatcher.gate <- struct{}{}
	defer func() { <-rig.dispatcher.gate }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rig.dispatcher.Dispatch(ctx, validMsg("/status"))

	if rig.spy.count() != 0 {
		t.Errorf("sent %d after cancellation, want 0", rig.spy.count())
	}
}
