package music

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

type fakePlayer struct {
	mu       sync.Mutex
	plays    []QueueEntry
	stops    int
	position time.Duration
	seeks    []time.Duration
	seekErr  error
	onEnd    func(QueueEntry, EndReason, error)
}

func (p *fakePlayer) Play(entry QueueEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, entry)
	p.position = 0
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seekErr != nil {
		return p.seekErr
	}
	p.seeks = append(p.seeks, pos)
	p.position = pos
	return nil
}

func (p *fakePlayer) lastPlayed() (QueueEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.plays) == 0 {
		return QueueEntry{}, false
	}
	return p.plays[len(p.plays)-1], true
}

type sentMessage struct {
	channel string
	content string
}

type fakePlatform struct {
	mu      sync.Mutex
	players map[string]*fakePlayer
	sent    []sentMessage
	closed  []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{players: make(map[string]*fakePlayer)}
}

func (f *fakePlatform) NewPlayer(guildID string, onEnd func(QueueEntry, EndReason, error)) Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePlayer{onEnd: onEnd}
	f.players[guildID] = p
	return p
}

func (f *fakePlatform) CloseAudioConnection(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, guildID)
	return nil
}

func (f *fakePlatform) SendMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: channelID, content: content})
	return nil
}

func (f *fakePlatform) player(guildID string) *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[guildID]
}

func (f *fakePlatform) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type loadCall struct {
	source string
	target string
}

type fakeLoader struct {
	mu      sync.Mutex
	results map[string]LoadResult
	errs    map[string]error
	calls   []loadCall
	hook    func(target string)
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		results: make(map[string]LoadResult),
		errs:    make(map[string]error),
	}
}

func (l *fakeLoader) Load(_ context.Context, src *Source, target string) (LoadResult, error) {
	l.mu.Lock()
	l.calls = append(l.calls, loadCall{source: src.Name, target: target})
	res, hasRes := l.results[target]
	err := l.errs[target]
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		hook(target)
	}
	if err != nil {
		return LoadResult{}, err
	}
	if !hasRes {
		return LoadResult{Kind: ResultEmpty, Selected: -1}, nil
	}
	return res, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type editedMessage struct {
	id  string
	msg Message
}

type fakeResponder struct {
	mu      sync.Mutex
	nextID  int
	sent    []Message
	edits   []editedMessage
	history []Message
	onSend  func(id string)
	onEdit  func(id string)
	sendErr error
}

func (r *fakeResponder) Send(_ context.Context, msg Message) (string, error) {
	r.mu.Lock()
	if r.sendErr != nil {
		r.mu.Unlock()
		return "", r.sendErr
	}
	r.nextID++
	id := fmt.Sprintf("msg-%d", r.nextID)
	r.sent = append(r.sent, msg)
	r.history = append(r.history, msg)
	hook := r.onSend
	r.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return id, nil
}

func (r *fakeResponder) Edit(_ context.Context, messageID string, msg Message) error {
	r.mu.Lock()
	r.edits = append(r.edits, editedMessage{id: messageID, msg: msg})
	r.history = append(r.history, msg)
	hook := r.onEdit
	r.mu.Unlock()

	if hook != nil {
		hook(messageID)
	}
	return nil
}

// last returns the most recent message sent or edited.
func (r *fakeResponder) last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Message{}
	}
	return r.history[len(r.history)-1]
}

func (r *fakeResponder) lastID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("msg-%d", r.nextID)
}

type fakeAuthorizer struct {
	mu         sync.Mutex
	code       DeviceCode
	fetchErr   error
	pollErrs   []error
	token      *oauth2.Token
	fetchCalls int
	pollCalls  int
}

func (a *fakeAuthorizer) FetchDeviceCode(context.Context) (DeviceCode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchCalls++
	if a.fetchErr != nil {
		return DeviceCode{}, a.fetchErr
	}
	return a.code, nil
}

func (a *fakeAuthorizer) PollToken(_ context.Context, deviceCode string) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pollCalls++
	if len(a.pollErrs) > 0 {
		err := a.pollErrs[0]
		a.pollErrs = a.pollErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if deviceCode != a.code.DeviceCode {
		return nil, fmt.Errorf("unexpected device code %q", deviceCode)
	}
	return a.token, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func track(title string, d time.Duration) Track {
	return Track{
		URI:      "https://example.com/" + title,
		Title:    title,
		Duration: d,
	}
}
