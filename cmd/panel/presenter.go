package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"panel-lab/domain"
	"panel-lab/domain/event"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	titleStyle   = color.New(color.BgBlack, color.FgGreen, color.OpBold)
	mineStyle    = color.New(color.FgGreen)
	otherStyle   = color.New(color.FgCyan)
	infoStyle    = color.New(color.FgLightBlue)
	warningStyle = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed, color.OpBold)
)

// Presenter prints what happens in the panel to the terminal.
type Presenter struct {
	mu       sync.Mutex
	out      io.Writer
	roster   []domain.Participant
	speaking map[string]bool
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out, speaking: make(map[string]bool)}
}

func (p *Presenter) Consume(_ context.Context, e event.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt := e.(type) {
	case event.SessionStarted:
		p.println(titleStyle.Render(fmt.Sprintf(" %s ", evt.Panel.Title)))
		if evt.Panel.Description != "" {
			p.println(evt.Panel.Description)
		}
		p.println(infoStyle.Sprintf("Joined as %s, panel %s", evt.Role, evt.Panel.ID))
	case event.RosterChanged:
		p.roster = evt.Participants
		p.renderRoster()
	case event.SpeakingChanged:
		p.speaking[evt.PeerID] = evt.Speaking
	case event.ChatPosted:
		style := otherStyle
		if evt.Message.Mine {
			style = mineStyle
		}
		p.println(fmt.Sprintf("[%s] %s: %s",
			evt.Message.CreatedAt.Local().Format("15:04"),
			style.Render(evt.Message.SenderName),
			evt.Message.Content))
	case event.RoleChanged:
		state := "unmuted"
		if evt.Muted {
			state = "muted"
		}
		p.println(infoStyle.Sprintf("You are %s (%s)", evt.Role, state))
	case event.Notified:
		p.println(styleOf(evt.Notification.Severity).Render(evt.Notification.Text))
	case event.SessionClosed:
		p.println(titleStyle.Render(fmt.Sprintf(" Session closed: %s ", evt.Reason)))
	}
	return nil
}

// Roster prints the last roster again.
func (p *Presenter) Roster() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderRoster()
}

func (p *Presenter) renderRoster() {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Id", "Name", "Role", "Mic", "Hand"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, participant := range p.roster {
		mic := "-"
		switch {
		case !participant.Role.CanSpeak():
		case participant.Muted:
			mic = "muted"
		case p.speaking[participant.PeerID]:
			mic = "speaking"
		default:
			mic = "on"
		}
		hand := ""
		if participant.HandRaised {
			hand = "raised"
		}
		table.Append([]string{participant.ID, participant.DisplayName, string(participant.Role), mic, hand})
	}
	table.Render()
}

func (p *Presenter) println(line string) {
	_, _ = fmt.Fprintln(p.out, line)
}

func styleOf(severity domain.Severity) color.Style {
	switch severity {
	case domain.SeverityWarning:
		return warningStyle
	case domain.SeverityError:
		return errorStyle
	default:
		return infoStyle
	}
}
