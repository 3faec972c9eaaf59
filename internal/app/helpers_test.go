package app_test

import (
	"sync"
	"time"

	"cognito-live-service/internal/domain"
)

// recordedEvent captures one fan-out call for assertions.
type recordedEvent struct {
	Channel string
	Event   string
	Payload any
	Target  string // userID for unicasts, "host" for host sends, "" for broadcasts
}

// fakeBroadcaster records events instead of routing them.
type fakeBroadcaster struct {
	mu       sync.Mutex
	events   []recordedEvent
	released []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{}
}

func (f *fakeBroadcaster) Broadcast(channel, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Channel: channel, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) SendToUser(channel, userID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Channel: channel, Event: event, Payload: payload, Target: userID})
}

func (f *fakeBroadcaster) SendToHost(channel, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Channel: channel, Event: event, Payload: payload, Target: "host"})
}

func (f *fakeBroadcaster) Release(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, channel)
}

func (f *fakeBroadcaster) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeBroadcaster) last(event string) (recordedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Event == event {
			return f.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (f *fakeBroadcaster) releasedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

// threeQuestionQuiz is the standard fixture: option 1 is always correct.
func threeQuestionQuiz() map[string]domain.Quiz {
	q := func(prompt string) domain.Question {
		return domain.Question{
			Prompt:       prompt,
			Options:      []string{"wrong", "right", "also wrong"},
			CorrectIndex: 1,
			Points:       100,
			TimeLimitSec: 30,
			Explanation:  "option two",
		}
	}
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Fixture quiz",
			PassingScore: 60,
			Questions:    []domain.Question{q("first"), q("second"), q("third")},
		},
	}
}

const fixtureQuizTTL = 5 * time.Minute
