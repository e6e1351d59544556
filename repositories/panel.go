//go:generate go run go.uber.org/mock/mockgen -source=panel.go -destination=../mocks/mock_panel_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"panel-lab/errors"

	"github.com/dgraph-io/badger/v4"
)

const panelPrefix = "panel:"

type IPanelRepository interface {
	CreatePanel(panel DiskPanel) error
	GetPanel(id string) (DiskPanel, error)
	ListActivePanels() ([]DiskPanel, error)
	UpdatePanel(id string, update func(*DiskPanel) error) (DiskPanel, error)
}

type PanelRepository struct {
	db *badger.DB
}

func NewPanelRepository(db *badger.DB) IPanelRepository {
	return &PanelRepository{db: db}
}

// DiskPanel is the coarse, audit-only view the directory keeps of a panel.
// Members holds the user ids currently joined.
type DiskPanel struct {
	ID          string     `cbor:"id"`
	Title       string     `cbor:"title"`
	Description string     `cbor:"description"`
	HostID      string     `cbor:"host_id"`
	HostName    string     `cbor:"host_name"`
	HostPeerID  string     `cbor:"host_peer_id"`
	Members     []string   `cbor:"members"`
	CreatedAt   time.Time  `cbor:"created_at"`
	EndedAt     *time.Time `cbor:"ended_at,omitempty"`
}

func (p DiskPanel) Ended() bool { return p.EndedAt != nil }

func (p DiskPanel) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (r PanelRepository) CreatePanel(panel DiskPanel) error {
	if panel.ID == "" {
		return errors.ErrMissingPanelID
	}
	data, err := marshal(panel)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(panelPrefix+panel.ID), data)
	})
}

func (r PanelRepository) GetPanel(id string) (DiskPanel, error) {
	var panel DiskPanel
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		panel, err = getPanel(txn, id)
		return err
	})
	return panel, err
}

// ListActivePanels returns the panels not ended yet, oldest first.
func (r PanelRepository) ListActivePanels() ([]DiskPanel, error) {
	var panels []DiskPanel
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(panelPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var panel DiskPanel
			err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &panel)
			})
			if err != nil {
				return err
			}
			if !panel.Ended() {
				panels = append(panels, panel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(panels, func(i, j int) bool {
		return panels[i].CreatedAt.Before(panels[j].CreatedAt)
	})
	return panels, nil
}

// UpdatePanel reads, mutates and writes the panel in one transaction.
// Nothing is written when update returns an error.
func (r PanelRepository) UpdatePanel(id string, update func(*DiskPanel) error) (DiskPanel, error) {
	var panel DiskPanel
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		if panel, err = getPanel(txn, id); err != nil {
			return err
		}
		if err = update(&panel); err != nil {
			return err
		}
		data, err := marshal(panel)
		if err != nil {
			return err
		}
		return txn.Set([]byte(panelPrefix+id), data)
	})
	if err != nil {
		return DiskPanel{}, err
	}
	return panel, nil
}

func getPanel(txn *badger.Txn, id string) (DiskPanel, error) {
	var panel DiskPanel
	item, err := txn.Get([]byte(panelPrefix + id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return DiskPanel{}, fmt.Errorf("%w: %s", errors.ErrPanelNotFound, id)
	}
	if err != nil {
		return DiskPanel{}, err
	}
	err = item.Value(func(val []byte) error {
		return unmarshal(val, &panel)
	})
	return panel, err
}
