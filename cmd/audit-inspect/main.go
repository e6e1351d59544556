package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"panel-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

func main() {
	dbPath := pflag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to the directory's badger DB")
	panelID := pflag.String("panel", "", "Panel whose audit trail is printed; active panels are listed when empty")
	limit := pflag.Int("limit", 0, "Print at most this many records, newest first")
	pflag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *panelID == "" {
		err = printPanels(os.Stdout, repositories.NewPanelRepository(db))
	} else {
		var max *int
		if *limit > 0 {
			max = limit
		}
		records := repositories.NewAuditRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), max)
		err = printRecords(os.Stdout, records, *panelID)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printPanels(out io.Writer, panels repositories.IPanelRepository) error {
	active, err := panels.ListActivePanels()
	if err != nil {
		return err
	}
	table := newTable(out, "Panel", "Created", "Title", "Host", "Host Peer", "Members")
	for _, p := range active {
		table.Append([]string{
			p.ID,
			p.CreatedAt.Format("2006-01-02 15:04:05"),
			p.Title,
			p.HostName,
			p.HostPeerID,
			fmt.Sprint(len(p.Members)),
		})
	}
	table.Render()
	return nil
}

func printRecords(out io.Writer, records repositories.IAuditRepository, panelID string) error {
	page, _, err := records.GetRecords(panelID, nil)
	if err != nil {
		return err
	}
	table := newTable(out, "At", "Action", "Actor", "Target", "Record")
	for _, r := range page {
		// First 8 characters of the ids are enough to tell them apart
		table.Append([]string{
			r.At.Format("15:04:05.000"),
			r.Action,
			short(r.ActorID),
			short(r.TargetID),
			short(r.ID.String()),
		})
	}
	table.Render()
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("--db or BADGER_FILEPATH is required")
	}
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		// A directory killed mid-write: open once in write mode to truncate
		repairOpts := badger.DefaultOptions(path).
			WithLogger(nil).WithBypassLockGuard(true)
		repaired, err := badger.Open(repairOpts)
		if err != nil {
			return nil, fmt.Errorf("repair failed: %w", err)
		}
		_ = repaired.Close()
		return badger.Open(opts)
	}
	return db, err
}
