package shared

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/weeve/internal/music"
)

func containerOf(t *testing.T, components []discordgo.MessageComponent) discordgo.Container {
	t.Helper()
	if len(components) != 1 {
		t.Fatalf("expected one top-level component, got %d", len(components))
	}
	c, ok := components[0].(discordgo.Container)
	if !ok {
		t.Fatalf("expected container, got %T", components[0])
	}
	return c
}

func rowsOf(c discordgo.Container) []discordgo.ActionsRow {
	var rows []discordgo.ActionsRow
	for _, comp := range c.Components {
		if row, ok := comp.(discordgo.ActionsRow); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func TestBuildComponents(t *testing.T) {
	tests := []struct {
		name     string
		msg      music.Message
		wantRows []int
	}{
		{
			name: "text only",
			msg:  music.Message{Content: "Nothing is playing"},
		},
		{
			name: "single row",
			msg: music.Message{Content: "pick", Buttons: []music.Button{
				{ID: "music:pick:0", Label: "1"},
				{ID: "music:alt", Label: "Try Bandcamp", Secondary: true},
			}},
			wantRows: []int{2},
		},
		{
			name: "overflow and link",
			msg: music.Message{
				Content: "pick",
				Buttons: []music.Button{
					{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}, {ID: "f"},
				},
				Link: &music.LinkButton{Label: "Link", URL: "https://example.com/device"},
			},
			wantRows: []int{5, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := containerOf(t, BuildComponents(tt.msg))

			text, ok := c.Components[0].(discordgo.TextDisplay)
			if !ok || text.Content != tt.msg.Content {
				t.Fatalf("first component = %#v, expected text %q", c.Components[0], tt.msg.Content)
			}

			rows := rowsOf(c)
			if len(rows) != len(tt.wantRows) {
				t.Fatalf("got %d rows, expected %d", len(rows), len(tt.wantRows))
			}
			for i, row := range rows {
				if len(row.Components) != tt.wantRows[i] {
					t.Errorf("row %d has %d buttons, expected %d", i, len(row.Components), tt.wantRows[i])
				}
			}
		})
	}
}

func TestBuildComponents_ButtonStyles(t *testing.T) {
	msg := music.Message{
		Content: "x",
		Buttons: []music.Button{
			{ID: "music:pick:0", Label: "1"},
			{ID: "music:pick:1", Label: "2", Secondary: true},
		},
		Link: &music.LinkButton{Label: "Link", URL: "https://example.com"},
	}

	rows := rowsOf(containerOf(t, BuildComponents(msg)))
	buttons := rows[0].Components

	if b := buttons[0].(discordgo.Button); b.Style != discordgo.PrimaryButton || b.CustomID != "music:pick:0" {
		t.Errorf("first button = %#v", b)
	}
	if b := buttons[1].(discordgo.Button); b.Style != discordgo.SecondaryButton {
		t.Errorf("second button style = %v", b.Style)
	}
	if b := buttons[2].(discordgo.Button); b.Style != discordgo.LinkButton || b.URL != "https://example.com" || b.CustomID != "" {
		t.Errorf("link button = %#v", b)
	}
}

func TestOptionGetters(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "daft punk"},
		{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
		{Name: "next", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	}

	if got := GetOptionString(opts, "query"); got != "daft punk" {
		t.Errorf("GetOptionString = %q", got)
	}
	if got := GetOptionInt64(opts, "amount"); got != 3 {
		t.Errorf("GetOptionInt64 = %d", got)
	}
	if !GetOptionBool(opts, "next") {
		t.Error("GetOptionBool = false")
	}

	if GetOptionString(opts, "source") != "" || GetOptionInt64(opts, "hours") != 0 || GetOptionBool(opts, "loop") {
		t.Error("missing options should return zero values")
	}
}

func TestGetInteractionUserID(t *testing.T) {
	tests := []struct {
		name string
		i    *discordgo.InteractionCreate
		want string
	}{
		{name: "nil", i: nil, want: ""},
		{
			name: "member",
			i: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
				Member: &discordgo.Member{User: &discordgo.User{ID: "m1"}},
			}},
			want: "m1",
		},
		{
			name: "user",
			i: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
				User: &discordgo.User{ID: "u1"},
			}},
			want: "u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetInteractionUserID(tt.i); got != tt.want {
				t.Errorf("GetInteractionUserID() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestResponder_OwnsMessage(t *testing.T) {
	component := &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: "sel"},
	}
	command := &discordgo.Interaction{Type: discordgo.InteractionApplicationCommand}

	if !NewResponder(nil, component).ownsMessage("sel") {
		t.Error("component interaction should own its message")
	}
	if NewResponder(nil, component).ownsMessage("other") {
		t.Error("component interaction should not own other messages")
	}
	if NewResponder(nil, command).ownsMessage("sel") {
		t.Error("command interaction edits go through followups")
	}
}
