package directory_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"panel-lab/auth"
	"panel-lab/directory"
	"panel-lab/domain"
	"panel-lab/errors"
	"panel-lab/repositories"
	"panel-lab/services"
	"panel-lab/signaling"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	issuer := auth.NewIssuer("a-test-secret", time.Hour)
	server := directory.NewServer(log,
		services.NewAuthService(repositories.NewUserRepository(db), issuer),
		services.NewPanelService(log, repositories.NewPanelRepository(db), repositories.NewAuditRepository(db, log, nil)),
		issuer,
		signaling.NewRelay(log))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func register(t *testing.T, ts *httptest.Server, name string) *directory.Client {
	t.Helper()
	client := directory.NewClient(ts.URL, ts.Client())
	email := strings.ToLower(name) + "@panel.io"
	require.NoError(t, client.Register(context.Background(), email, "ComplexPass123!", name))
	return client
}

func TestDirectory_Panel_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ts := newDirectory(t)
	host := register(t, ts, "Host")
	alice := register(t, ts, "Alice")

	// Given a panel created by the host
	id, err := host.CreatePanel(ctx, domain.CreatePanelRequest{Title: "Live", Description: "about Go", HostPeerID: "peer-host"})
	req.NoError(err)
	req.NotEmpty(id)

	// When alice lists then joins it
	panels, err := alice.ListPanels(ctx)
	req.NoError(err)
	req.Len(panels, 1)
	req.Equal("Live", panels[0].Title)
	req.Equal("Host", panels[0].HostName)
	req.Equal(1, panels[0].MemberCount)

	ticket, err := alice.JoinPanel(ctx, id)
	req.NoError(err)
	req.Equal("peer-host", ticket.HostPeerID)
	req.Equal(id, ticket.Panel.ID)
	req.Equal("about Go", ticket.Panel.Description)

	// And the usual side effects are reported
	req.NoError(alice.RaiseHand(ctx, id))
	req.NoError(host.Promote(ctx, id, "someone"))
	req.NoError(alice.LowerHand(ctx, id))
	req.NoError(host.MuteAll(ctx, id))

	panels, err = alice.ListPanels(ctx)
	req.NoError(err)
	req.Equal(2, panels[0].MemberCount)

	// Then only the host can end it
	req.ErrorIs(alice.EndPanel(ctx, id), errors.ErrNotPanelHost)
	req.NoError(host.EndPanel(ctx, id))

	// And it is gone for everyone
	panels, err = alice.ListPanels(ctx)
	req.NoError(err)
	req.Empty(panels)
	_, err = alice.JoinPanel(ctx, id)
	req.ErrorIs(err, errors.ErrPanelEnded)

	// While its trail survives, oldest first
	entries, err := host.Audit(ctx, id)
	req.NoError(err)
	req.Equal([]domain.AuditAction{
		domain.AuditCreate, domain.AuditJoin, domain.AuditRaiseHand, domain.AuditPromote,
		domain.AuditLowerHand, domain.AuditMuteAll, domain.AuditEnd,
	}, lo.Map(entries, func(e domain.AuditEntry, _ int) domain.AuditAction { return e.Action }))
	req.Equal("someone", entries[3].TargetID)
}

func TestClient_Identity(t *testing.T) {
	req := require.New(t)
	ts := newDirectory(t)
	alice := register(t, ts, "Alice")

	id, err := alice.Identity()

	req.NoError(err)
	req.NotEmpty(id.UserID)
	req.Equal("Alice", id.DisplayName)

	_, err = directory.NewClient(ts.URL, ts.Client()).Identity()
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestDirectory_Kick_And_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ts := newDirectory(t)
	host := register(t, ts, "Host")
	alice := register(t, ts, "Alice")

	id, err := host.CreatePanel(ctx, domain.CreatePanelRequest{Title: "Live", HostPeerID: "peer-host"})
	req.NoError(err)
	_, err = alice.JoinPanel(ctx, id)
	req.NoError(err)

	entries, err := host.Audit(ctx, id)
	req.NoError(err)
	aliceID := entries[1].ActorID

	// The host cannot be kicked
	req.ErrorIs(alice.Kick(ctx, id, entries[0].ActorID), errors.ErrInvalidPayload)
	req.NoError(host.Kick(ctx, id, aliceID))

	panels, err := host.ListPanels(ctx)
	req.NoError(err)
	req.Equal(1, panels[0].MemberCount)

	// When the host leaves, the panel ends
	req.NoError(host.LeavePanel(ctx, id))
	panels, err = host.ListPanels(ctx)
	req.NoError(err)
	req.Empty(panels)
}

func TestDirectory_Errors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ts := newDirectory(t)
	alice := register(t, ts, "Alice")

	// Unknown panel
	_, err := alice.JoinPanel(ctx, "missing")
	req.ErrorIs(err, errors.ErrPanelNotFound)
	req.ErrorIs(err, errors.ErrDirectoryRejected)

	// Invalid creation
	_, err = alice.CreatePanel(ctx, domain.CreatePanelRequest{Title: "", HostPeerID: "peer"})
	req.ErrorIs(err, errors.ErrInvalidPayload)

	// Duplicate account
	err = directory.NewClient(ts.URL, ts.Client()).Register(ctx, "alice@panel.io", "ComplexPass123!", "Again")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// Wrong password, then no token at all
	anonymous := directory.NewClient(ts.URL, ts.Client())
	req.ErrorIs(anonymous.Login(ctx, "alice@panel.io", "WrongPass123!"), errors.ErrUnauthenticated)
	_, err = anonymous.ListPanels(ctx)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// A correct login works again
	req.NoError(anonymous.Login(ctx, "alice@panel.io", "ComplexPass123!"))
	_, err = anonymous.ListPanels(ctx)
	req.NoError(err)
}

func TestDirectory_Unreachable(t *testing.T) {
	req := require.New(t)
	ts := newDirectory(t)
	client := directory.NewClient(ts.URL, ts.Client())
	ts.Close()

	_, err := client.ListPanels(context.Background())

	req.ErrorIs(err, errors.ErrDirectoryUnreachable)
}

func TestStatusOf(t *testing.T) {
	req := require.New(t)
	req.Equal(http.StatusBadRequest, directory.StatusOf(errors.ErrInvalidPassword))
	req.Equal(http.StatusUnauthorized, directory.StatusOf(errors.ErrInvalidCredentials))
	req.Equal(http.StatusForbidden, directory.StatusOf(errors.ErrNotPanelHost))
	req.Equal(http.StatusNotFound, directory.StatusOf(errors.ErrPanelNotFound))
	req.Equal(http.StatusConflict, directory.StatusOf(errors.ErrUserAlreadyExists))
	req.Equal(http.StatusGone, directory.StatusOf(errors.ErrPanelEnded))
	req.Equal(http.StatusInternalServerError, directory.StatusOf(badger.ErrConflict))
}

func TestDirectory_Malformed_Body(t *testing.T) {
	req := require.New(t)
	ts := newDirectory(t)

	res, err := ts.Client().Post(ts.URL+"/auth/login/", "application/json", strings.NewReader("{"))
	req.NoError(err)
	defer res.Body.Close()

	req.Equal(http.StatusBadRequest, res.StatusCode)
}
