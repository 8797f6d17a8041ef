package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MaxCandidates = 5

	ButtonPrefix      = "music:"
	pickButtonPrefix  = ButtonPrefix + "pick:"
	altButtonID       = ButtonPrefix + "alt"
	playlistButtonID  = ButtonPrefix + "all"
	resolveLogTimeout = 2 * time.Second

	ExpiredMessage        = "This event has expired. Try /play again."
	JoinVoiceMessage      = "Join a voice channel first"
	MissingQueryMessage   = "Tell me what to play"
	InternalErrorMessage  = "[**INTERNAL ERROR**] An unknown error has occurred. Try again later."
	defaultAuthLinkLabel  = "Link"
	selectionHeader       = "**Select a track:**"
	playlistSuffixFormat  = " (first song of playlist **%s** with **%d** tracks)"
	sourceRotatedFormat   = "\n**%s** failed, so searches now use **%s** by default"
	staleResultFormat     = "Playback was reset while %s was loading"
	authPendingFormat     = "Linking with **%s** is starting. Try again in a few seconds."
	authFailedFormat      = "Linking with **%s** failed. Try again to get a new code."
	authPromptFormat      = "__To start using **%s**__:\nLink %s with a burner account. Go to <%s> and enter code **%s**.\n*You only need to do this once!*"
	alternateButtonFormat = "Try %s"
)

type Button struct {
	ID        string
	Label     string
	Secondary bool
}

type LinkButton struct {
	Label string
	URL   string
}

type Message struct {
	Content string
	Buttons []Button
	Link    *LinkButton
}

// Responder delivers replies for one interaction. Send returns the ID of the
// created message so it can be edited later.
type Responder interface {
	Send(ctx context.Context, msg Message) (string, error)
	Edit(ctx context.Context, messageID string, msg Message) error
}

// Request is a play request. A nil Source means the current default.
type Request struct {
	GuildID      string
	Query        string
	Source       *Source
	PlayNext     bool
	VoiceChannel string
	TextChannel  string
}

type ButtonPress struct {
	GuildID      string
	MessageID    string
	ButtonID     string
	VoiceChannel string
	TextChannel  string
}

type Failure struct {
	GuildID     string
	Source      string
	Query       string
	Reason      string
	AuthMissing bool
	RotatedTo   string
}

type FailureRecorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

type ServiceObserver interface {
	Resolved(source, outcome string, took time.Duration)
	SourceRotated(from, to string)
	ButtonPressed(action string)
}

type ServiceOptions struct {
	BotName  string
	Failures FailureRecorder
	Observer ServiceObserver
	Logger   *zap.Logger
}

// Service resolves play requests against sources and turns the results into
// queue changes or selection messages.
type Service struct {
	sources  *SourceRegistry
	sessions *SessionRegistry
	loader   Loader
	failures FailureRecorder
	observer ServiceObserver
	botName  string
	logger   *zap.Logger
}

func NewService(sources *SourceRegistry, sessions *SessionRegistry, loader Loader, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BotName == "" {
		opts.BotName = "the bot"
	}
	return &Service{
		sources:  sources,
		sessions: sessions,
		loader:   loader,
		failures: opts.Failures,
		observer: opts.Observer,
		botName:  opts.BotName,
		logger:   opts.Logger.Named("resolver"),
	}
}

func (s *Service) Sources() *SourceRegistry {
	return s.sources
}

func (s *Service) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *Service) Resolve(ctx context.Context, req Request, resp Responder) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.send(ctx, resp, Message{Content: MissingQueryMessage})
		return
	}
	if req.VoiceChannel == "" {
		s.send(ctx, resp, Message{Content: JoinVoiceMessage})
		return
	}

	src := req.Source
	if src == nil {
		src = s.sources.Default()
	}
	s.resolve(ctx, req, src, !IsURL(req.Query), resp)
}

func (s *Service) resolve(ctx context.Context, req Request, src *Source, isSearch bool, resp Responder) {
	logger := s.logger.With(
		zap.String("guild_id", req.GuildID),
		zap.String("source", src.Name),
		zap.String("query", req.Query))

	if src.RequiresAuth() && !src.Available() {
		if !s.authorize(ctx, src, resp) {
			return
		}
	}

	session := s.sessions.GetOrCreate(req.GuildID)
	epoch := session.Epoch()

	start := time.Now()
	res, err := s.loader.Load(ctx, src, src.Target(req.Query, isSearch))
	took := time.Since(start)

	if !s.stillCurrent(req.GuildID, session, epoch) {
		logger.Debug("Dropping result for reset session")
		s.observeResolved(src, "stale", took)
		s.send(ctx, resp, Message{Content: fmt.Sprintf(staleResultFormat, quote(req.Query))})
		return
	}

	if err != nil {
		s.observeResolved(src, "failed", took)
		s.fail(ctx, req, src, isSearch, err, resp, logger)
		return
	}

	switch res.Kind {
	case ResultTrack:
		s.observeResolved(src, "track", took)
		track, _ := res.SelectedTrack()
		entry := QueueEntry{Track: track, Channel: req.VoiceChannel, Origin: req.TextChannel}
		outcome, ok := session.EnqueueAt(epoch, []QueueEntry{entry}, req.PlayNext)
		if !ok {
			s.send(ctx, resp, Message{Content: fmt.Sprintf(staleResultFormat, quote(req.Query))})
			return
		}
		s.send(ctx, resp, Message{Content: playMessage(track, outcome, "")})
	case ResultPlaylist:
		s.observeResolved(src, "playlist", took)
		s.publish(ctx, session, epoch, req, src, isSearch, res, resp)
	default:
		s.observeResolved(src, "empty", took)
		s.publish(ctx, session, epoch, req, src, isSearch, res, resp)
	}
}

func (s *Service) stillCurrent(guildID string, session *SessionQueue, epoch uint64) bool {
	current, ok := s.sessions.Lookup(guildID)
	return ok && current == session && session.Epoch() == epoch
}

// publish sends a message offering candidates and the alternate-source
// retry. Buttons are bound before they are attached to the message so a
// press can never arrive ahead of its binding.
func (s *Service) publish(ctx context.Context, session *SessionQueue, epoch uint64, req Request, src *Source, isSearch bool, res LoadResult, resp Responder) {
	var content strings.Builder
	var buttons []Button
	bindings := make(map[string]PendingAction)

	if res.Kind == ResultPlaylist {
		if !isSearch {
			fmt.Fprintf(&content, "Playlist **%s** with **%d** tracks\n", EscapeMarkdown(res.Name), len(res.Tracks))
		}
		content.WriteString(selectionHeader)

		for i, track := range res.Tracks {
			if i >= MaxCandidates {
				break
			}
			fmt.Fprintf(&content, "\n**%d:** %s", i+1, EscapeMarkdown(track.Title))
			if track.Duration >= 0 && !track.IsLive {
				fmt.Fprintf(&content, " (**%s**)", FormatDuration(track.Duration))
			}

			id := fmt.Sprintf("%s%d", pickButtonPrefix, i)
			buttons = append(buttons, Button{ID: id, Label: fmt.Sprintf("%d", i+1), Secondary: req.PlayNext})
			bindings[id] = PlaySpecificTrack{Track: track, PlayNext: req.PlayNext, Channel: req.VoiceChannel}
		}

		if !isSearch && len(res.Tracks) > 1 {
			buttons = append(buttons, Button{ID: playlistButtonID, Label: fmt.Sprintf("All %d", len(res.Tracks)), Secondary: req.PlayNext})
			bindings[playlistButtonID] = QueuePlaylist{
				Name:     res.Name,
				Tracks:   append([]Track(nil), res.Tracks...),
				PlayNext: req.PlayNext,
				Channel:  req.VoiceChannel,
			}
		}
	} else {
		content.WriteString("Nothing found by " + quote(req.Query))
	}

	if btn, action, ok := s.alternate(req, src, isSearch); ok {
		buttons = append(buttons, btn)
		bindings[btn.ID] = action
	}

	msg := Message{Content: Truncate(content.String(), MaxMessageLength)}
	if len(buttons) == 0 {
		s.send(ctx, resp, msg)
		return
	}

	id, err := resp.Send(ctx, msg)
	if err != nil {
		s.logger.Warn("Failed to send selection message", zap.Error(err))
		return
	}

	if session.Epoch() != epoch {
		return
	}
	session.Selections().Publish(id, bindings)

	msg.Buttons = buttons
	if err := resp.Edit(ctx, id, msg); err != nil {
		s.logger.Warn("Failed to attach selection buttons", zap.Error(err))
	}
}

func (s *Service) alternate(req Request, src *Source, isSearch bool) (Button, PendingAction, bool) {
	if !isSearch {
		return Button{}, nil, false
	}
	alt := s.sources.Next(src)
	if alt == nil {
		return Button{}, nil, false
	}
	return Button{ID: altButtonID, Label: fmt.Sprintf(alternateButtonFormat, alt.FancyName), Secondary: true},
		RetryWithAlternateSource{IsSearch: isSearch, PlayNext: req.PlayNext, Query: req.Query, Source: alt},
		true
}

func (s *Service) fail(ctx context.Context, req Request, src *Source, isSearch bool, err error, resp Responder, logger *zap.Logger) {
	failure := Failure{
		GuildID: req.GuildID,
		Source:  src.Name,
		Query:   req.Query,
		Reason:  err.Error(),
	}

	if errors.Is(err, ErrAuthMissing) && src.RequiresAuth() {
		failure.AuthMissing = true
		logger.Warn("Source rejected request for missing authorization", zap.Error(err))
		s.record(ctx, failure)
		src.Auth().Revoke()
		s.authorize(ctx, src, resp)
		return
	}

	content := "No audio could be found for " + quote(req.Query)

	if isSearch {
		if to, rotated := s.sources.Rotate(src); rotated {
			failure.RotatedTo = to.Name
			content += fmt.Sprintf(sourceRotatedFormat, src.FancyName, to.FancyName)
			logger.Warn("Rotated default source", zap.String("to", to.Name))
			if s.observer != nil {
				s.observer.SourceRotated(src.Name, to.Name)
			}
		}
	}

	logger.Warn("Failed to load audio", zap.Error(err))
	s.record(ctx, failure)

	msg := Message{Content: content}
	btn, action, ok := s.alternate(req, src, isSearch)
	if !ok {
		s.send(ctx, resp, msg)
		return
	}

	session := s.sessions.GetOrCreate(req.GuildID)
	id, err := resp.Send(ctx, msg)
	if err != nil {
		logger.Warn("Failed to send failure message", zap.Error(err))
		return
	}
	session.Selections().Publish(id, map[string]PendingAction{btn.ID: action})
	msg.Buttons = []Button{btn}
	if err := resp.Edit(ctx, id, msg); err != nil {
		logger.Warn("Failed to attach retry button", zap.Error(err))
	}
}

// authorize advances the source's handshake and prompts the user when the
// source is still unusable. It reports whether the request may go ahead.
func (s *Service) authorize(ctx context.Context, src *Source, resp Responder) bool {
	poller := src.Auth()
	if poller == nil {
		return true
	}

	prompt, ok, err := poller.Check(ctx)
	switch {
	case ok:
		return true
	case errors.Is(err, ErrAuthPending):
		s.send(ctx, resp, Message{Content: fmt.Sprintf(authPendingFormat, src.FancyName)})
	case err != nil:
		s.logger.Warn("Device authorization failed", zap.String("source", src.Name), zap.Error(err))
		s.send(ctx, resp, Message{Content: fmt.Sprintf(authFailedFormat, src.FancyName)})
	default:
		s.send(ctx, resp, Message{
			Content: fmt.Sprintf(authPromptFormat, src.FancyName, s.botName, prompt.VerificationURL, prompt.UserCode),
			Link:    &LinkButton{Label: defaultAuthLinkLabel, URL: prompt.VerificationURL},
		})
	}
	return false
}

// HandleButton fires the action bound to a pressed button. Each selection
// message can be used once; later presses are reported as expired.
func (s *Service) HandleButton(ctx context.Context, press ButtonPress, resp Responder) {
	var action PendingAction
	session, ok := s.sessions.Lookup(press.GuildID)
	if ok {
		action, ok = session.Selections().Take(press.MessageID, press.ButtonID)
	}
	if !ok {
		s.observeButton("expired")
		if err := resp.Edit(ctx, press.MessageID, Message{Content: ExpiredMessage}); err != nil {
			s.logger.Warn("Failed to mark selection expired", zap.Error(err))
		}
		return
	}

	switch a := action.(type) {
	case PlaySpecificTrack:
		s.observeButton("pick")
		entry := QueueEntry{Track: a.Track, Channel: a.Channel, Origin: press.TextChannel}
		outcome := session.Enqueue(entry, a.PlayNext)
		s.edit(ctx, resp, press.MessageID, Message{Content: playMessage(a.Track, outcome, "")})
	case QueuePlaylist:
		s.observeButton("playlist")
		entries := make([]QueueEntry, 0, len(a.Tracks))
		for _, t := range a.Tracks {
			entries = append(entries, QueueEntry{Track: t, Channel: a.Channel, Origin: press.TextChannel})
		}
		outcome := session.EnqueueAll(entries, a.PlayNext)
		suffix := fmt.Sprintf(playlistSuffixFormat, EscapeMarkdown(a.Name), len(a.Tracks))
		s.edit(ctx, resp, press.MessageID, Message{Content: playMessage(a.Tracks[0], outcome, suffix)})
	case RetryWithAlternateSource:
		s.observeButton("alternate")
		s.edit(ctx, resp, press.MessageID, Message{Content: fmt.Sprintf("Searching **%s** for %s", a.Source.FancyName, quote(a.Query))})
		req := Request{
			GuildID:      press.GuildID,
			Query:        a.Query,
			Source:       a.Source,
			PlayNext:     a.PlayNext,
			VoiceChannel: press.VoiceChannel,
			TextChannel:  press.TextChannel,
		}
		if req.VoiceChannel == "" {
			s.send(ctx, resp, Message{Content: JoinVoiceMessage})
			return
		}
		s.resolve(ctx, req, a.Source, a.IsSearch, resp)
	default:
		s.logger.Error("Unknown pending action", zap.String("type", fmt.Sprintf("%T", action)))
		s.edit(ctx, resp, press.MessageID, Message{Content: InternalErrorMessage})
	}
}

func playMessage(track Track, outcome PlaybackOutcome, suffix string) string {
	info := formatTrack(track, trackFormat{bold: true, duration: true, link: true})
	switch {
	case outcome.StartedImmediately:
		return "Now playing " + info + suffix
	case outcome.WillPlayNext:
		return info + " will play next" + suffix
	default:
		return info + " added to queue" + suffix
	}
}

func quote(q string) string {
	return "`" + strings.ReplaceAll(q, "`", "'") + "`"
}

func (s *Service) send(ctx context.Context, resp Responder, msg Message) {
	msg.Content = Truncate(msg.Content, MaxMessageLength)
	if _, err := resp.Send(ctx, msg); err != nil {
		s.logger.Warn("Failed to send reply", zap.Error(err))
	}
}

func (s *Service) edit(ctx context.Context, resp Responder, messageID string, msg Message) {
	msg.Content = Truncate(msg.Content, MaxMessageLength)
	if err := resp.Edit(ctx, messageID, msg); err != nil {
		s.logger.Warn("Failed to edit reply", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, f Failure) {
	if s.failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveLogTimeout)
	defer cancel()
	if err := s.failures.RecordFailure(ctx, f); err != nil {
		s.logger.Debug("Failed to record resolution failure", zap.Error(err))
	}
}

func (s *Service) observeResolved(src *Source, outcome string, took time.Duration) {
	if s.observer != nil {
		s.observer.Resolved(src.Name, outcome, took)
	}
}

func (s *Service) observeButton(action string) {
	if s.observer != nil {
		s.observer.ButtonPressed(action)
	}
}
