package services

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"panel-lab/auth"
	"panel-lab/domain"
	"panel-lab/errors"
	"panel-lab/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// IPanelService is the directory's view of panels. It keeps a coarse copy
// (who joined, whether it ended) and the audit trail; the hub's roster stays
// the behavioural truth, so nothing here re-checks roles beyond the host.
type IPanelService interface {
	ListPanels() ([]domain.PanelSummary, error)
	CreatePanel(who auth.Identity, req domain.CreatePanelRequest) (domain.PanelID, error)
	JoinPanel(who auth.Identity, id domain.PanelID) (domain.JoinTicket, error)
	LeavePanel(who auth.Identity, id domain.PanelID) error
	Record(who auth.Identity, id domain.PanelID, action domain.AuditAction, targetID string) error
	Kick(who auth.Identity, id domain.PanelID, participantID string) error
	EndPanel(who auth.Identity, id domain.PanelID) error
	Audit(id domain.PanelID) ([]domain.AuditEntry, error)
}

type PanelService struct {
	log     *slog.Logger
	panels  repositories.IPanelRepository
	records repositories.IAuditRepository
	now     func() time.Time
}

func NewPanelService(log *slog.Logger, panels repositories.IPanelRepository,
	records repositories.IAuditRepository) *PanelService {
	return &PanelService{log: log, panels: panels, records: records, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PanelService) ListPanels() ([]domain.PanelSummary, error) {
	panels, err := s.panels.ListActivePanels()
	if err != nil {
		return nil, err
	}
	return lo.Map(panels, func(p repositories.DiskPanel, _ int) domain.PanelSummary {
		return toSummary(p)
	}), nil
}

func (s *PanelService) CreatePanel(who auth.Identity, req domain.CreatePanelRequest) (domain.PanelID, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	panel := repositories.DiskPanel{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		HostID:      who.UserID,
		HostName:    who.DisplayName,
		HostPeerID:  req.HostPeerID,
		Members:     []string{who.UserID},
		CreatedAt:   s.now(),
	}
	if err := s.panels.CreatePanel(panel); err != nil {
		return "", err
	}
	id := domain.PanelID(panel.ID)
	s.log.Info("Panel created", "panel", id, "host", who.UserID)
	return id, s.record(who, id, domain.AuditCreate, "")
}

// JoinPanel hands back where the hub is. Joining twice is not an error.
func (s *PanelService) JoinPanel(who auth.Identity, id domain.PanelID) (domain.JoinTicket, error) {
	panel, err := s.panels.UpdatePanel(string(id), func(p *repositories.DiskPanel) error {
		if p.Ended() {
			return errors.ErrPanelEnded
		}
		if !p.HasMember(who.UserID) {
			p.Members = append(p.Members, who.UserID)
		}
		return nil
	})
	if err != nil {
		return domain.JoinTicket{}, err
	}
	if err := s.record(who, id, domain.AuditJoin, ""); err != nil {
		return domain.JoinTicket{}, err
	}
	return domain.JoinTicket{
		HostPeerID: panel.HostPeerID,
		Panel: domain.PanelInfo{
			ID:          id,
			Title:       panel.Title,
			Description: panel.Description,
			HostID:      panel.HostID,
			CreatedAt:   panel.CreatedAt,
		},
	}, nil
}

// LeavePanel removes the caller. The host leaving ends the panel.
func (s *PanelService) LeavePanel(who auth.Identity, id domain.PanelID) error {
	var ended bool
	_, err := s.panels.UpdatePanel(string(id), func(p *repositories.DiskPanel) error {
		if p.Ended() {
			return errors.ErrPanelEnded
		}
		p.Members = lo.Without(p.Members, who.UserID)
		if p.HostID == who.UserID {
			p.EndedAt = lo.ToPtr(s.now())
			ended = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.record(who, id, domain.AuditLeave, ""); err != nil {
		return err
	}
	if ended {
		return s.record(who, id, domain.AuditEnd, "")
	}
	return nil
}

// Record appends an action that changes nothing in the directory's copy
// (hands, mute all, promotions) to the panel's audit trail.
func (s *PanelService) Record(who auth.Identity, id domain.PanelID, action domain.AuditAction, targetID string) error {
	if _, err := s.activePanel(id); err != nil {
		return err
	}
	return s.record(who, id, action, targetID)
}

func (s *PanelService) Kick(who auth.Identity, id domain.PanelID, participantID string) error {
	_, err := s.panels.UpdatePanel(string(id), func(p *repositories.DiskPanel) error {
		if p.Ended() {
			return errors.ErrPanelEnded
		}
		if participantID == p.HostID {
			return errors.ErrHostImmutable
		}
		p.Members = lo.Without(p.Members, participantID)
		return nil
	})
	if err != nil {
		return err
	}
	return s.record(who, id, domain.AuditKick, participantID)
}

// EndPanel is the host's only; later joins get ErrPanelEnded.
func (s *PanelService) EndPanel(who auth.Identity, id domain.PanelID) error {
	_, err := s.panels.UpdatePanel(string(id), func(p *repositories.DiskPanel) error {
		if p.Ended() {
			return errors.ErrPanelEnded
		}
		if p.HostID != who.UserID {
			return errors.ErrNotPanelHost
		}
		p.EndedAt = lo.ToPtr(s.now())
		p.Members = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("Panel ended", "panel", id)
	return s.record(who, id, domain.AuditEnd, "")
}

// Audit returns the panel's whole trail, oldest first. Ended panels keep theirs.
func (s *PanelService) Audit(id domain.PanelID) ([]domain.AuditEntry, error) {
	if _, err := s.panels.GetPanel(string(id)); err != nil {
		return nil, err
	}
	var all []repositories.AuditRecord
	var cursor *string
	for {
		page, next, err := s.records.GetRecords(string(id), cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		cursor = next
	}
	slices.Reverse(all)
	return lo.Map(all, func(r repositories.AuditRecord, _ int) domain.AuditEntry {
		return domain.AuditEntry{
			PanelID:  domain.PanelID(r.PanelID),
			Action:   domain.AuditAction(r.Action),
			ActorID:  r.ActorID,
			TargetID: r.TargetID,
			At:       r.At,
		}
	}), nil
}

func (s *PanelService) activePanel(id domain.PanelID) (repositories.DiskPanel, error) {
	panel, err := s.panels.GetPanel(string(id))
	if err != nil {
		return repositories.DiskPanel{}, err
	}
	if panel.Ended() {
		return repositories.DiskPanel{}, errors.ErrPanelEnded
	}
	return panel, nil
}

func (s *PanelService) record(who auth.Identity, id domain.PanelID, action domain.AuditAction, targetID string) error {
	return s.records.StoreRecord(repositories.AuditRecord{
		ID:       uuid.New(),
		PanelID:  string(id),
		Action:   string(action),
		ActorID:  who.UserID,
		TargetID: targetID,
		At:       s.now(),
	})
}

func toSummary(p repositories.DiskPanel) domain.PanelSummary {
	return domain.PanelSummary{
		ID:          domain.PanelID(p.ID),
		Title:       p.Title,
		Description: p.Description,
		HostID:      p.HostID,
		HostName:    p.HostName,
		MemberCount: len(p.Members),
	}
}
