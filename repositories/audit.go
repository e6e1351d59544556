//go:generate go run go.uber.org/mock/mockgen -source=audit.go -destination=../mocks/mock_audit_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IAuditRepository interface {
	StoreRecord(record AuditRecord) error
	GetRecords(panelID string, cursor *string) ([]AuditRecord, *string, error)
}

type AuditRepository struct {
	db           *badger.DB
	log          *slog.Logger
	limitRecords *int
}

func NewAuditRepository(db *badger.DB, log *slog.Logger, limitRecords *int) AuditRepository {
	return AuditRepository{db: db, log: log, limitRecords: limitRecords}
}

type AuditRecord struct {
	ID       uuid.UUID `cbor:"id"`
	PanelID  string    `cbor:"panel_id"`
	Action   string    `cbor:"action"`
	ActorID  string    `cbor:"actor_id"`
	TargetID string    `cbor:"target_id,omitempty"`
	At       time.Time `cbor:"at"`
}

// StoreRecord persists an audit record in BadgerDB.
// The key is formatted as "audit:{panel_id}:{timestamp_padded}:{uuid}" so a
// prefix scan returns a panel's records in chronological order (19-digit zero
// padding), with the uuid separating records written in the same nanosecond.
func (a AuditRepository) StoreRecord(record AuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	key := fmt.Sprintf("audit:%s:%019d:%s",
		record.PanelID,
		record.At.UnixNano(),
		record.ID,
	)
	data, err := marshal(record)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// GetRecords walks a panel's records from the newest backwards, starting
// after cursor when one is given. It stops once limitRecords is reached and
// returns the cursor to resume from.
func (a AuditRepository) GetRecords(panelID string, cursor *string) ([]AuditRecord, *string, error) {
	var records []AuditRecord
	var lastKey string
	err := a.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("audit:%s:", panelID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible timestamp, then walk back
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if a.limitRecords != nil && len(records) == *a.limitRecords {
				a.log.Debug(fmt.Sprintf("Maximum of %d audit records reached", *a.limitRecords))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			var record AuditRecord
			err := item.Value(func(value []byte) error {
				return unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return records, &lastKey, nil
}
