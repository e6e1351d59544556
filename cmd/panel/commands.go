package main

import (
	"fmt"
	"strings"

	"panel-lab/domain"
)

const help = `/hand /lower              raise or lower your hand
/approve <id>             let a listener speak
/cohost <id>              make a participant cohost
/mute <id> | /muteall     force-mute one or every speaker
/kick <id> [reason]       remove a participant
/toggle                   mute or unmute yourself
/who                      show the roster
/leave | /end             leave, or end the panel (host)
anything else             chat`

// errLocal marks lines handled by the terminal itself, not the session.
var errLocal = fmt.Errorf("local command")

// parseLine turns one line typed by the user into a session command.
func parseLine(line string) (domain.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errLocal
	}
	if !strings.HasPrefix(line, "/") {
		return domain.PostChatCommand{Text: line}, nil
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	target := func() (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("%s needs a participant id", name)
		}
		return args[0], nil
	}

	switch name {
	case "/hand":
		return domain.RaiseHandCommand{}, nil
	case "/lower":
		return domain.LowerHandCommand{}, nil
	case "/approve":
		id, err := target()
		return domain.ApproveSpeakerCommand{ParticipantID: id}, err
	case "/cohost":
		id, err := target()
		return domain.AssignCohostCommand{ParticipantID: id}, err
	case "/mute":
		id, err := target()
		return domain.ForceMuteCommand{ParticipantID: id}, err
	case "/muteall":
		return domain.MuteAllCommand{}, nil
	case "/kick":
		id, err := target()
		reason := ""
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		return domain.KickCommand{ParticipantID: id, Reason: reason}, err
	case "/toggle":
		return domain.ToggleMuteCommand{}, nil
	case "/leave":
		return domain.LeaveCommand{}, nil
	case "/end":
		return domain.EndPanelCommand{}, nil
	case "/who", "/help":
		return nil, errLocal
	default:
		return nil, fmt.Errorf("unknown command %s, type /help", name)
	}
}
