package music

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type fakeRecorder struct {
	mu       sync.Mutex
	failures []Failure
}

func (r *fakeRecorder) RecordFailure(_ context.Context, f Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	return nil
}

type serviceFixture struct {
	platform *fakePlatform
	loader   *fakeLoader
	sources  *SourceRegistry
	sessions *SessionRegistry
	recorder *fakeRecorder
	svc      *Service

	soundcloud *Source
	bandcamp   *Source
}

func newServiceFixture(t *testing.T, extra ...*Source) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		platform:   newFakePlatform(),
		loader:     newFakeLoader(),
		recorder:   &fakeRecorder{},
		soundcloud: NewSource("soundcloud", "SoundCloud", "scsearch5:", "soundcloud.com"),
		bandcamp:   NewSource("bandcamp", "Bandcamp", "bcsearch:", "bandcamp.com"),
	}

	all := append([]*Source{f.soundcloud, f.bandcamp}, extra...)
	sources, err := NewSourceRegistry("soundcloud", all...)
	if err != nil {
		t.Fatalf("NewSourceRegistry() error = %v", err)
	}
	f.sources = sources
	f.sessions = NewSessionRegistry(f.platform, QueueOptions{})
	f.svc = NewService(f.sources, f.sessions, f.loader, ServiceOptions{
		BotName:  "Weeve",
		Failures: f.recorder,
	})
	return f
}

func request(query string) Request {
	return Request{GuildID: "g1", Query: query, VoiceChannel: "voice-1", TextChannel: "text-1"}
}

func press(messageID, buttonID string) ButtonPress {
	return ButtonPress{GuildID: "g1", MessageID: messageID, ButtonID: buttonID, VoiceChannel: "voice-1", TextChannel: "text-1"}
}

func playlist(name string, titles ...string) LoadResult {
	res := LoadResult{Kind: ResultPlaylist, Selected: -1, Name: name}
	for _, title := range titles {
		res.Tracks = append(res.Tracks, track(title, 3*time.Minute))
	}
	return res
}

func buttonIDs(buttons []Button) []string {
	ids := make([]string, 0, len(buttons))
	for _, b := range buttons {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestService_SearchPublishesThenPlaysPick(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.loader.results["scsearch5:lofi"] = playlist("", "rain", "coffee", "night")
	resp := &fakeResponder{}

	resp.onEdit = func(id string) {
		q, _ := f.sessions.Lookup("g1")
		if q.Selections().Len() != 1 {
			t.Error("buttons were attached before their bindings were published")
		}
	}

	f.svc.Resolve(ctx, request("lofi"), resp)

	if len(resp.sent) != 1 || len(resp.sent[0].Buttons) != 0 {
		t.Fatalf("expected one message sent without buttons, got %+v", resp.sent)
	}
	content := resp.sent[0].Content
	if !strings.HasPrefix(content, "**Select a track:**") {
		t.Errorf("content = %q", content)
	}
	if !strings.Contains(content, "**2:** coffee (**3:00**)") {
		t.Errorf("content missing candidate line: %q", content)
	}

	if len(resp.edits) != 1 || resp.edits[0].id != "msg-1" {
		t.Fatalf("edits = %+v, expected one edit of msg-1", resp.edits)
	}
	ids := buttonIDs(resp.edits[0].msg.Buttons)
	expected := []string{"music:pick:0", "music:pick:1", "music:pick:2", "music:alt"}
	if strings.Join(ids, ",") != strings.Join(expected, ",") {
		t.Errorf("buttons = %v, expected %v", ids, expected)
	}
	if label := resp.edits[0].msg.Buttons[3].Label; label != "Try Bandcamp" {
		t.Errorf("alternate label = %q", label)
	}

	resp.onEdit = nil
	f.svc.HandleButton(ctx, press("msg-1", "music:pick:1"), resp)

	if got := resp.last().Content; !strings.HasPrefix(got, "Now playing **coffee**") {
		t.Errorf("after pick = %q", got)
	}
	entry, ok := f.platform.player("g1").lastPlayed()
	if !ok || entry.Track.Title != "coffee" || entry.Channel != "voice-1" {
		t.Errorf("played %+v", entry)
	}

	f.svc.HandleButton(ctx, press("msg-1", "music:pick:0"), resp)
	if got := resp.last().Content; got != ExpiredMessage {
		t.Errorf("second press = %q, expected expired", got)
	}
	if plays := len(f.platform.player("g1").plays); plays != 1 {
		t.Errorf("plays = %d, expected 1", plays)
	}
}

func TestService_SearchCapsCandidates(t *testing.T) {
	f := newServiceFixture(t)
	f.loader.results["scsearch5:jazz"] = playlist("", "a", "b", "c", "d", "e", "f", "g")
	resp := &fakeResponder{}

	req := request("jazz")
	req.PlayNext = true
	f.svc.Resolve(context.Background(), req, resp)

	buttons := resp.edits[0].msg.Buttons
	if len(buttons) != MaxCandidates+1 {
		t.Fatalf("got %d buttons, expected %d", len(buttons), MaxCandidates+1)
	}
	for _, b := range buttons {
		if !b.Secondary {
			t.Errorf("button %s should be secondary for play-next requests", b.ID)
		}
	}
	if strings.Contains(resp.sent[0].Content, "**6:**") {
		t.Error("only the first candidates should be listed")
	}
}

func TestService_SingleTrackOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	for _, name := range []string{"one", "two", "three"} {
		uri := "https://soundcloud.com/artist/" + name
		f.loader.results[uri] = LoadResult{Kind: ResultTrack, Tracks: []Track{track(name, time.Minute)}, Selected: 0}
	}
	resp := &fakeResponder{}

	f.svc.Resolve(ctx, request("https://soundcloud.com/artist/one"), resp)
	if got := resp.last().Content; !strings.HasPrefix(got, "Now playing **one**") {
		t.Errorf("first = %q", got)
	}

	f.svc.Resolve(ctx, request("https://soundcloud.com/artist/two"), resp)
	if got := resp.last().Content; !strings.HasSuffix(got, " added to queue") {
		t.Errorf("second = %q", got)
	}

	req := request("https://soundcloud.com/artist/three")
	req.PlayNext = true
	f.svc.Resolve(ctx, req, resp)
	if got := resp.last().Content; !strings.HasSuffix(got, " will play next") {
		t.Errorf("third = %q", got)
	}

	q, _ := f.sessions.Lookup("g1")
	if got := titles(q.Snapshot().Pending); strings.Join(got, ",") != "three,two" {
		t.Errorf("pending = %v, expected [three two]", got)
	}
	if q.TextChannel() != "text-1" {
		t.Errorf("TextChannel() = %q", q.TextChannel())
	}
}

func TestService_URLPlaylistQueuesAll(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	uri := "https://soundcloud.com/artist/sets/mix"
	f.loader.results[uri] = playlist("Mix", "a", "b", "c")
	resp := &fakeResponder{}

	f.svc.Resolve(ctx, request(uri), resp)

	if !strings.HasPrefix(resp.sent[0].Content, "Playlist **Mix** with **3** tracks\n**Select a track:**") {
		t.Errorf("content = %q", resp.sent[0].Content)
	}
	ids := buttonIDs(resp.edits[0].msg.Buttons)
	if strings.Join(ids, ",") != "music:pick:0,music:pick:1,music:pick:2,music:all" {
		t.Errorf("buttons = %v; URL results should offer no alternate", ids)
	}

	f.svc.HandleButton(ctx, press("msg-1", "music:all"), resp)

	got := resp.last().Content
	if !strings.HasPrefix(got, "Now playing **a**") || !strings.HasSuffix(got, "(first song of playlist **Mix** with **3** tracks)") {
		t.Errorf("after all = %q", got)
	}
	q, _ := f.sessions.Lookup("g1")
	if pending := titles(q.Snapshot().Pending); strings.Join(pending, ",") != "b,c" {
		t.Errorf("pending = %v", pending)
	}
}

func TestService_EmptyResultOffersAlternate(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.loader.results["bcsearch:obscure"] = LoadResult{Kind: ResultTrack, Tracks: []Track{track("found", time.Minute)}, Selected: 0}
	resp := &fakeResponder{}

	f.svc.Resolve(ctx, request("obscure"), resp)

	if got := resp.sent[0].Content; got != "Nothing found by `obscure`" {
		t.Errorf("content = %q", got)
	}
	if ids := buttonIDs(resp.edits[0].msg.Buttons); len(ids) != 1 || ids[0] != "music:alt" {
		t.Fatalf("buttons = %v", ids)
	}

	f.svc.HandleButton(ctx, press("msg-1", "music:alt"), resp)

	if got := resp.edits[1].msg.Content; got != "Searching **Bandcamp** for `obscure`" {
		t.Errorf("retry edit = %q", got)
	}
	if call := f.loader.calls[1]; call.source != "bandcamp" || call.target != "bcsearch:obscure" {
		t.Errorf("retry call = %+v", call)
	}
	if got := resp.last().Content; !strings.HasPrefix(got, "Now playing **found**") {
		t.Errorf("after retry = %q", got)
	}
	if f.sources.Default() != f.soundcloud {
		t.Error("an empty result must not rotate the default")
	}
}

func TestService_SearchFailureRotatesDefault(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.loader.errs["scsearch5:boom"] = fmt.Errorf("%w: http 503", ErrResolveFailed)
	resp := &fakeResponder{}

	f.svc.Resolve(ctx, request("boom"), resp)

	content := resp.sent[0].Content
	if !strings.HasPrefix(content, "No audio could be found for `boom`") {
		t.Errorf("content = %q", content)
	}
	if !strings.Contains(content, "**SoundCloud** failed, so searches now use **Bandcamp** by default") {
		t.Errorf("content missing rotation note: %q", content)
	}
	if f.sources.Default() != f.bandcamp {
		t.Errorf("Default() = %v, expected bandcamp", f.sources.Default())
	}
	if ids := buttonIDs(resp.edits[0].msg.Buttons); len(ids) != 1 || ids[0] != "music:alt" {
		t.Errorf("buttons = %v", ids)
	}

	if len(f.recorder.failures) != 1 || f.recorder.failures[0].RotatedTo != "bandcamp" {
		t.Errorf("failures = %+v", f.recorder.failures)
	}

	f.svc.Resolve(ctx, request("next"), resp)
	if call := f.loader.calls[1]; call.target != "bcsearch:next" {
		t.Errorf("later search used %q, expected the rotated default", call.target)
	}
}

func TestService_FailuresThatDoNotRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("url", func(t *testing.T) {
		f := newServiceFixture(t)
		uri := "https://soundcloud.com/artist/gone"
		f.loader.errs[uri] = fmt.Errorf("%w: 404", ErrResolveFailed)
		resp := &fakeResponder{}

		f.svc.Resolve(ctx, request(uri), resp)

		if f.sources.Default() != f.soundcloud {
			t.Error("URL failures must not rotate the default")
		}
		if len(resp.edits) != 0 || len(resp.sent[0].Buttons) != 0 {
			t.Error("URL failures offer no alternate")
		}
	})

	t.Run("explicit non-default source", func(t *testing.T) {
		f := newServiceFixture(t)
		f.loader.errs["bcsearch:boom"] = fmt.Errorf("%w: 500", ErrResolveFailed)
		resp := &fakeResponder{}

		req := request("boom")
		req.Source = f.bandcamp
		f.svc.Resolve(ctx, req, resp)

		if f.sources.Default() != f.soundcloud {
			t.Error("a failing non-default source must not rotate the default")
		}
		if strings.Contains(resp.sent[0].Content, "by default") {
			t.Errorf("content = %q", resp.sent[0].Content)
		}
	})
}

func TestService_RequiresVoiceAndQuery(t *testing.T) {
	f := newServiceFixture(t)
	resp := &fakeResponder{}

	f.svc.Resolve(context.Background(), request("   "), resp)
	if got := resp.last().Content; got != MissingQueryMessage {
		t.Errorf("empty query = %q", got)
	}

	req := request("lofi")
	req.VoiceChannel = ""
	f.svc.Resolve(context.Background(), req, resp)
	if got := resp.last().Content; got != JoinVoiceMessage {
		t.Errorf("no voice = %q", got)
	}

	if f.loader.callCount() != 0 {
		t.Error("nothing should be loaded")
	}
}

func TestService_GatedSourcePromptsForAuth(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuthorizer()
	auth.pollErrs = []error{ErrAuthPending}
	youtube := NewSource("youtube", "YouTube", "ytsearch5:", "youtube.com").
		WithAuth(NewAuthPoller("youtube", auth, nil))
	f := newServiceFixture(t, youtube)
	resp := &fakeResponder{}

	req := request("lofi")
	req.Source = youtube
	f.svc.Resolve(ctx, req, resp)

	msg := resp.last()
	if !strings.Contains(msg.Content, "enter code **ABCD-EFGH**") || !strings.Contains(msg.Content, "<https://example.com/device>") {
		t.Errorf("prompt = %q", msg.Content)
	}
	if msg.Link == nil || msg.Link.URL != "https://example.com/device" {
		t.Errorf("link = %+v", msg.Link)
	}
	if f.loader.callCount() != 0 {
		t.Error("nothing should be loaded before linking")
	}

	f.svc.Resolve(ctx, request("lofi"), resp)
	if ids := buttonIDs(resp.edits[0].msg.Buttons); strings.Contains(strings.Join(ids, ","), "youtube") {
		t.Errorf("unlinked source offered as alternate: %v", ids)
	}
	if label := resp.edits[0].msg.Buttons[0].Label; label != "Try Bandcamp" {
		t.Errorf("alternate label = %q", label)
	}
}

func TestService_RejectedTokenStartsNewHandshake(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuthorizer()
	poller := NewAuthPoller("youtube", auth, nil)
	poller.state = AuthAuthorized
	poller.token = &oauth2.Token{AccessToken: "old", RefreshToken: "r"}
	poller.authorized.Store(true)
	youtube := NewSource("youtube", "YouTube", "ytsearch5:", "youtube.com").WithAuth(poller)

	f := newServiceFixture(t, youtube)
	f.loader.errs["ytsearch5:lofi"] = fmt.Errorf("%w: sign in to confirm", ErrAuthMissing)
	resp := &fakeResponder{}

	req := request("lofi")
	req.Source = youtube
	f.svc.Resolve(ctx, req, resp)

	if !strings.Contains(resp.last().Content, "enter code **ABCD-EFGH**") {
		t.Errorf("content = %q", resp.last().Content)
	}
	if poller.Authorized() {
		t.Error("a rejected credential should be revoked")
	}
	if len(f.recorder.failures) != 1 || !f.recorder.failures[0].AuthMissing {
		t.Errorf("failures = %+v", f.recorder.failures)
	}
}

func TestService_DropsResultsAfterReset(t *testing.T) {
	ctx := context.Background()

	t.Run("reset during load", func(t *testing.T) {
		f := newServiceFixture(t)
		f.loader.results["scsearch5:lofi"] = LoadResult{Kind: ResultTrack, Tracks: []Track{track("late", time.Minute)}, Selected: 0}
		f.loader.hook = func(string) { f.sessions.GetOrCreate("g1").Reset() }
		resp := &fakeResponder{}

		f.svc.Resolve(ctx, request("lofi"), resp)

		if got := resp.last().Content; got != "Playback was reset while `lofi` was loading" {
			t.Errorf("content = %q", got)
		}
		if _, ok := f.platform.player("g1").lastPlayed(); ok {
			t.Error("stale result must not play")
		}
	})

	t.Run("session removed during load", func(t *testing.T) {
		f := newServiceFixture(t)
		f.loader.results["scsearch5:lofi"] = playlist("", "a", "b")
		f.loader.hook = func(string) { f.sessions.Remove("g1") }
		resp := &fakeResponder{}

		f.svc.Resolve(ctx, request("lofi"), resp)

		if len(resp.edits) != 0 {
			t.Error("no selection should be offered for a removed session")
		}
		if _, ok := f.sessions.Lookup("g1"); ok {
			t.Error("dropping a stale result must not recreate the session")
		}
	})

	t.Run("reset before buttons attach", func(t *testing.T) {
		f := newServiceFixture(t)
		f.loader.results["scsearch5:lofi"] = playlist("", "a", "b")
		resp := &fakeResponder{}
		resp.onSend = func(string) { f.sessions.GetOrCreate("g1").Reset() }

		f.svc.Resolve(ctx, request("lofi"), resp)

		if len(resp.edits) != 0 {
			t.Error("buttons should not be attached after a reset")
		}
		if q, _ := f.sessions.Lookup("g1"); q.Selections().Len() != 0 {
			t.Error("no binding should survive a reset")
		}
	})
}

func TestService_ButtonForUnknownGuildExpires(t *testing.T) {
	f := newServiceFixture(t)
	resp := &fakeResponder{}

	f.svc.HandleButton(context.Background(), press("msg-9", "music:pick:0"), resp)

	if len(resp.edits) != 1 || resp.edits[0].id != "msg-9" || resp.edits[0].msg.Content != ExpiredMessage {
		t.Errorf("edits = %+v", resp.edits)
	}
}
