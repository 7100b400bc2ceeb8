package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vpnshield/pkg/apiserver"
	"vpnshield/pkg/assessor"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/config"
	"vpnshield/pkg/ippool"
	"vpnshield/pkg/logging"
	"vpnshield/pkg/secrets"
	"vpnshield/pkg/session"
	"vpnshield/pkg/telemetry"
	"vpnshield/testclient"

	"github.com/alecthomas/kingpin/v2"
)

var (
	app = kingpin.New("vpnshield", "VPN session controller.")

	commandStart = app.Command("start", "Start the session controller and its control API")
	flagConfig   = commandStart.Flag("config", "Path to the configuration file").ExistingFile()

	flagServer   = app.Flag("server", "Control API address, http(s)://host:port or unix:/path").Default("http://127.0.0.1:7400").String()
	flagUsername = app.Flag("username", "Control API username").String()
	flagPassword = app.Flag("password", "Control API password").String()
	flagDebug    = app.Flag("debug", "Dump control API requests and responses").Bool()

	commandServers = app.Command("servers", "List available servers")

	commandConnect  = app.Command("connect", "Connect to a server, or disconnect when connected")
	argConnectID    = commandConnect.Arg("server", "Server ID; the current selection if omitted").String()
	flagConnectWait = commandConnect.Flag("wait", "Wait until the session settles").Default("true").Bool()

	commandWatch = app.Command("watch", "Stream session snapshots")

	commandSetKey  = app.Command("set-api-key", "Store the assessment API key in the system keyring")
	flagSetKeyUser = commandSetKey.Flag("user", "Keyring user").Required().String()
	flagSetKeyKey  = commandSetKey.Flag("key", "API key").Required().String()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case commandStart.FullCommand():
		actionStart(*flagConfig)
	case commandServers.FullCommand():
		runClient(func(ctx context.Context, c *testclient.Client) error {
			return testclient.PrintServers(ctx, c, os.Stdout)
		})
	case commandConnect.FullCommand():
		runClient(func(ctx context.Context, c *testclient.Client) error {
			return testclient.Toggle(ctx, c, *argConnectID, *flagConnectWait)
		})
	case commandWatch.FullCommand():
		runClient(func(ctx context.Context, c *testclient.Client) error {
			return testclient.Watch(ctx, c, os.Stdout)
		})
	case commandSetKey.FullCommand():
		if err := secrets.StoreAPIKey(*flagSetKeyUser, *flagSetKeyKey); err != nil {
			slog.Error("error storing API key", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func runClient(fn func(ctx context.Context, c *testclient.Client) error) {
	testclient.InitLogging(*flagDebug)

	c, err := testclient.New(testclient.Options{
		Server:   *flagServer,
		Username: *flagUsername,
		Password: *flagPassword,
		Debug:    *flagDebug,
	})
	if err != nil {
		slog.Error("error creating client", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, c); err != nil {
		slog.Error("command failed", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

func actionStart(configPath string) {
	// Load the configuration
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			slog.Error("error loading configuration", slog.Any("err", err))
			os.Exit(1)
			return
		}
	}

	// Initialize logging
	logging.Init(cfg.Logging)

	cat := catalog.Default()
	if cfg.Catalog.File != "" {
		var err error
		cat, err = catalog.LoadFile(cfg.Catalog.File)
		if err != nil {
			slog.Error("error loading server catalog", slog.Any("err", err))
			os.Exit(1)
			return
		}
	}
	slog.Info("server catalog loaded", slog.Int("servers", cat.Len()))

	allocator, err := ippool.New(cfg.AddressPool)
	if err != nil {
		slog.Error("error creating address allocator", slog.Any("err", err))
		os.Exit(1)
		return
	}

	generator, err := telemetry.NewGenerator(cfg.Telemetry)
	if err != nil {
		slog.Error("error creating throughput generator", slog.Any("err", err))
		os.Exit(1)
		return
	}
	if closer, ok := generator.(io.Closer); ok {
		defer closer.Close()
	}

	ctrl := session.New(session.Options{
		Config:    cfg.Session,
		Allocator: allocator,
		Assessor:  newAssessor(cfg.Assessor),
		Generator: generator,
	})
	ctrl.Select(cat.First())
	ctrl.Subscribe(&transitionLogger{})
	ctrl.Start()
	defer ctrl.Close()

	slog.Info("start API server")
	apiServer, err := apiserver.New(cfg.API, ctrl, cat)
	if err != nil {
		slog.Error("error creating API server", slog.Any("err", err))
		os.Exit(1)
		return
	}

	MustRun("API server", apiServer.ListenAndServe)

	slog.Info("started")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	slog.Info("stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Warn("error shutting down API server", slog.Any("err", err))
	}
}

func newAssessor(cfg config.AssessorConfig) *assessor.Assessor {
	if cfg.URL == "" {
		slog.Info("assessment backend is not configured")
		return assessor.New(nil)
	}

	apiKey, err := secrets.ResolveAPIKey(cfg)
	if err != nil {
		slog.Warn("error resolving assessment API key", slog.Any("err", err))
	}
	if apiKey == "" {
		slog.Warn("assessment API key is missing")
		return assessor.New(nil)
	}

	return assessor.New(assessor.NewHTTPBackend(cfg, apiKey))
}

// transitionLogger logs state changes and one-shot events.
type transitionLogger struct {
	last session.State
}

func (l *transitionLogger) Notify(snap session.Snapshot) {
	if snap.Event != nil {
		slog.Warn("session event", slog.String("kind", string(snap.Event.Kind)), slog.String("message", snap.Event.Message))
	}
	if snap.State == l.last {
		return
	}
	l.last = snap.State
	slog.Debug("session state changed", slog.String("state", snap.State.String()),
		slog.Uint64("generation", snap.Generation))
}

func MustRun(name string, fn func() error) {
	if err := fn(); err != nil {
		slog.Error("error running service", slog.String("name", name), slog.Any("err", err))
		os.Exit(1)
	}
}
