package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/gazemap/internal/clock"
)

// fnMsg carries work posted from another goroutine into Update.
type fnMsg func()

// timerMsg reports that the real timer with this id elapsed.
type timerMsg uint64

// Loop bridges goroutines and timers into the Bubble Tea event loop. It
// implements clock.Clock; callbacks run inside Update.
type Loop struct {
	msgs chan tea.Msg
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	seq    uint64
	timers map[uint64]*loopTimer
}

type loopTimer struct {
	loop *Loop
	id   uint64
	f    func()
	rt   *time.Timer
}

// NewLoop returns a loop whose inbound queue holds up to buffer messages.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		msgs:   make(chan tea.Msg, buffer),
		done:   make(chan struct{}),
		timers: map[uint64]*loopTimer{},
	}
}

// Post queues fn to run on the loop. It blocks while the queue is full and
// drops fn once the loop is closed.
func (l *Loop) Post(fn func()) {
	l.send(fnMsg(fn))
}

func (l *Loop) send(msg tea.Msg) {
	select {
	case <-l.done:
	case l.msgs <- msg:
	}
}

// Now implements clock.Clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc implements clock.Clock.
func (l *Loop) AfterFunc(d time.Duration, f func()) clock.Timer {
	l.mu.Lock()
	l.seq++
	t := &loopTimer{loop: l, id: l.seq, f: f}
	l.timers[t.id] = t
	l.mu.Unlock()
	id := t.id
	t.rt = time.AfterFunc(d, func() { l.send(timerMsg(id)) })
	return t
}

// Close stops every timer and releases blocked senders.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		for id, t := range l.timers {
			t.rt.Stop()
			delete(l.timers, id)
		}
		l.mu.Unlock()
	})
}

// wait returns a command delivering the next inbound message.
func (l *Loop) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-l.done:
			return nil
		case msg := <-l.msgs:
			return msg
		}
	}
}

// handle runs loop messages. It reports whether msg belonged to the loop.
func (l *Loop) handle(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case fnMsg:
		msg()
		return true
	case timerMsg:
		l.fire(uint64(msg))
		return true
	}
	return false
}

func (l *Loop) fire(id uint64) {
	l.mu.Lock()
	t, ok := l.timers[id]
	delete(l.timers, id)
	l.mu.Unlock()
	if ok {
		t.f()
	}
}

func (t *loopTimer) Stop() bool {
	t.loop.mu.Lock()
	_, ok := t.loop.timers[t.id]
	delete(t.loop.timers, t.id)
	t.loop.mu.Unlock()
	if t.rt != nil {
		t.rt.Stop()
	}
	return ok
}
