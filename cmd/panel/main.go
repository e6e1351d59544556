package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"panel-lab/audio"
	"panel-lab/contract"
	"panel-lab/directory"
	"panel-lab/domain"
	"panel-lab/errors"
	"panel-lab/internal"
	"panel-lab/projection"
	"panel-lab/runtime"
	"panel-lab/sink"
	"panel-lab/transport/rtc"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
)

// Exit codes for the panel client.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type options struct {
	email       string
	password    string
	name        string
	register    bool
	list        bool
	create      string
	description string
	join        string
	tone        bool
	silent      bool
}

func main() {
	code, err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Panel error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, in io.Reader, out io.Writer) (int, error) {
	// 1. Configuration, flags override the environment
	var config internal.PanelConfig
	if err := internal.Load(&config); err != nil {
		return exitConfig, err
	}
	var opts options
	flagSet := pflag.NewFlagSet("panel", pflag.ContinueOnError)
	flagSet.StringVar(&opts.email, "email", "", "account email")
	flagSet.StringVar(&opts.password, "password", os.Getenv("PANEL_PASSWORD"), "account password (or PANEL_PASSWORD)")
	flagSet.StringVar(&opts.name, "name", "", "display name, with --register")
	flagSet.BoolVar(&opts.register, "register", false, "create the account first")
	flagSet.BoolVar(&opts.list, "list", false, "list joinable panels and exit")
	flagSet.StringVar(&opts.create, "create", "", "create a panel with this title and host it")
	flagSet.StringVar(&opts.description, "description", "", "description of the created panel")
	flagSet.StringVar(&opts.join, "join", "", "join the panel with this id")
	flagSet.BoolVar(&opts.tone, "tone", false, "use a synthetic tone instead of the microphone")
	flagSet.BoolVar(&opts.silent, "silent", false, "do not play remote audio")
	flagSet.StringVar(&config.DirectoryURL, "directory", config.DirectoryURL, "directory base url")
	flagSet.StringVar(&config.SignalingURL, "signaling", config.SignalingURL, "signaling relay base url")
	flagSet.StringVar(&config.LogLevel, "log-level", config.LogLevel, "DEBUG, INFO, WARN or ERROR")
	if err := flagSet.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}
	if opts.email == "" || opts.password == "" {
		return exitConfig, fmt.Errorf("--email and --password are required")
	}
	if !opts.list && (opts.create == "") == (opts.join == "") {
		return exitConfig, fmt.Errorf("exactly one of --list, --create or --join is required")
	}
	charReplacement, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Account
	client := directory.NewClient(config.DirectoryURL, nil)
	if opts.register {
		err = client.Register(ctx, opts.email, opts.password, opts.name)
	} else {
		err = client.Login(ctx, opts.email, opts.password)
	}
	if err != nil {
		return exitRuntime, err
	}
	identity, err := client.Identity()
	if err != nil {
		return exitRuntime, err
	}

	if opts.list {
		panels, err := client.ListPanels(ctx)
		if err != nil {
			return exitRuntime, err
		}
		renderPanels(out, panels)
		return exitOK, nil
	}

	// 3. Transport
	tr, err := rtc.New(ctx, config.SignalingURL, "", iceServers(config.StunURLs), log)
	if err != nil {
		return exitRuntime, fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = tr.Close() }()

	// 4. Panel, created or joined through the directory
	cfg := runtime.Config{
		Self:              domain.Participant{ID: identity.UserID, PeerID: tr.ID(), DisplayName: identity.DisplayName},
		Limits:            domain.Limits{MaxCohosts: config.MaxCohosts, MaxSpeakers: config.MaxSpeakers},
		MaxChatLength:     config.MaxChatLength,
		SpeakingThreshold: config.SpeakingThreshold,
	}
	if opts.create != "" {
		id, err := client.CreatePanel(ctx, domain.CreatePanelRequest{
			Title:       opts.create,
			Description: opts.description,
			HostPeerID:  tr.ID(),
		})
		if err != nil {
			return exitRuntime, err
		}
		cfg.Hub = true
		cfg.Panel = domain.PanelInfo{ID: id, Title: opts.create, Description: opts.description,
			HostID: identity.UserID, CreatedAt: time.Now().UTC()}
	} else {
		ticket, err := client.JoinPanel(ctx, domain.PanelID(opts.join))
		if err != nil {
			return exitRuntime, fmt.Errorf("%w: %w", errors.ErrJoinFailed, err)
		}
		cfg.Panel = ticket.Panel
		cfg.HostPeerID = ticket.HostPeerID
	}

	// 5. Audio devices
	var microphone contract.Microphone = audio.NewFFmpegMicrophone(config.MicrophoneDevice, log)
	if opts.tone {
		microphone = audio.NewToneMicrophone(440, 0.2)
	}
	var speakers contract.AudioSink = audio.NewDiscardSink()
	if !opts.silent {
		ffplay := audio.NewFFplaySink(log)
		defer ffplay.Close()
		speakers = ffplay
	}

	// 6. Orchestrator and its sinks
	orchestrator := runtime.NewOrchestrator(log, cfg,
		runtime.Deps{Transport: tr, Microphone: microphone, Sink: speakers},
		config.BufferSize, config.SinkTimeout, config.MetricInterval,
		config.LowCapacityThreshold, charReplacement)
	presenter := NewPresenter(out)
	orchestrator.RegisterSinks(
		presenter,
		projection.NewTimeline(identity.UserID),
		sink.NewDirectorySink(client, log),
	)

	go readCommands(in, out, orchestrator, presenter)

	// 7. Runs until the session closes or the process is signalled
	if err := orchestrator.Start(ctx); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func readCommands(in io.Reader, out io.Writer, orchestrator contract.IOrchestrator, presenter *Presenter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		cmd, err := parseLine(line)
		switch {
		case stderrors.Is(err, errLocal):
			switch strings.TrimSpace(line) {
			case "/who":
				presenter.Roster()
			case "/help":
				_, _ = fmt.Fprintln(out, help)
			}
		case err != nil:
			_, _ = fmt.Fprintln(out, err)
		default:
			if err := orchestrator.Dispatch(cmd); err != nil {
				_, _ = fmt.Fprintln(out, err)
			}
		}
	}
}

func iceServers(urls string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	for _, u := range strings.Split(urls, ",") {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	return servers
}

func renderPanels(out io.Writer, panels []domain.PanelSummary) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Id", "Title", "Host", "Members", "Description"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, p := range panels {
		table.Append([]string{string(p.ID), p.Title, p.HostName, fmt.Sprint(p.MemberCount), p.Description})
	}
	table.Render()
}
