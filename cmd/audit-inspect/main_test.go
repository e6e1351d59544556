package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"panel-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	at := time.Now().UTC()
	panels := repositories.NewPanelRepository(db)
	req.NoError(panels.CreatePanel(repositories.DiskPanel{ID: "panel-1", Title: "Live", HostName: "Host", Members: []string{"host"}, CreatedAt: at}))
	records := repositories.NewAuditRepository(db, slog.Default(), nil)
	req.NoError(records.StoreRecord(repositories.AuditRecord{PanelID: "panel-1", Action: "create", ActorID: "host-0123456789", At: at}))
	req.NoError(records.StoreRecord(repositories.AuditRecord{PanelID: "panel-1", Action: "kick", ActorID: "host-0123456789", TargetID: "alice", At: at.Add(time.Second)}))

	var out bytes.Buffer
	req.NoError(printPanels(&out, panels))
	req.Contains(out.String(), "panel-1")
	req.Contains(out.String(), "Live")

	out.Reset()
	req.NoError(printRecords(&out, records, "panel-1"))
	printed := out.String()
	req.Contains(printed, "kick")
	req.Contains(printed, "host-012")
	req.NotContains(printed, "host-0123")
	// Newest first
	req.Less(bytes.Index(out.Bytes(), []byte("kick")), bytes.Index(out.Bytes(), []byte("create")))
}
