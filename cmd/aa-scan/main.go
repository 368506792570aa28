// Command aa-scan runs one active-alignment cycle (or the single-frame
// MTF gate) on a station, records the verdict and optionally serves the
// scan reports.
//
//	aa-scan -config config/aa.defaults.json -dev -listen :8080
//	aa-scan migrate status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/mtf"
	"github.com/banshee-data/activealign/internal/report"
	"github.com/banshee-data/activealign/internal/scan"
	"github.com/banshee-data/activealign/internal/store"
	"github.com/banshee-data/activealign/internal/telemetry"
	"github.com/banshee-data/activealign/internal/version"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "Station config (.json, .yaml or .yml)")
	dbPath        = flag.String("db", "aa.db", "SQLite database path")
	migrationsDir = flag.String("migrations", "", "Migrations directory (default: embedded)")
	port          = flag.String("port", "", "Stage serial port (overrides stage_port; ignored in dev mode)")
	devMode       = flag.Bool("dev", false, "Use the simulated chart camera and stage")
	devFocus      = flag.Float64("dev-focus", 0.05, "Focus Z of the simulated chart in mm")
	replayDir     = flag.String("replay", "", "Serve camera frames from this directory")
	listen        = flag.String("listen", "", "Serve reports and debug routes on this address after the cycle")
	mqttBroker    = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	station       = flag.String("station", "", "Station id (overrides station_id)")
	scanMode      = flag.String("mode", "", "Scan mode: normal, dfov, stationary or xscan (overrides scan_mode)")
	mtfOnly       = flag.Bool("mtf", false, "Run the single-frame MTF gate instead of a focus scan")
	plotsDir      = flag.String("plots", "", "Write per-layer focus curve PNGs into this directory")
	showVersion   = flag.Bool("version", false, "Print version and exit")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("aa-scan", version.String())
		return
	}
	monitoring.SetDebug(*debug)

	if flag.Arg(0) == "migrate" {
		os.Exit(runMigrate(flag.Args()[1:], *dbPath, *migrationsDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options{
		ConfigPath:    *configPath,
		DBPath:        *dbPath,
		MigrationsDir: *migrationsDir,
		Port:          *port,
		Dev:           *devMode,
		DevFocus:      *devFocus,
		ReplayDir:     *replayDir,
		Listen:        *listen,
		MQTTBroker:    *mqttBroker,
		Station:       *station,
		Mode:          *scanMode,
		MTF:           *mtfOnly,
		PlotsDir:      *plotsDir,
	}); err != nil {
		log.Fatalf("aa-scan: %v", err)
	}
}

type options struct {
	ConfigPath    string
	DBPath        string
	MigrationsDir string
	Port          string
	Dev           bool
	DevFocus      float64
	ReplayDir     string
	Listen        string
	MQTTBroker    string
	Station       string
	Mode          string
	MTF           bool
	PlotsDir      string
}

func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Mode != "" {
		cfg.ScanMode = &o.Mode
	}
	if o.Station != "" {
		cfg.StationID = &o.Station
	}
	if o.Port != "" {
		cfg.StagePort = &o.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	db, err := store.OpenRaw(o.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.MigrateUp(o.MigrationsDir); err != nil {
		return err
	}

	hw, err := openRig(cfg, o)
	if err != nil {
		return err
	}
	defer hw.Close()

	var pub *telemetry.Publisher
	if o.MQTTBroker != "" {
		client, err := telemetry.Dial(ctx, telemetry.Options{Broker: o.MQTTBroker, ClientID: "aa-scan-" + cfg.GetStationID()})
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub = telemetry.NewPublisher(client, cfg.GetMQTTTopicPrefix(), cfg.GetStationID())
	}

	if o.MTF {
		err = runGate(ctx, cfg, hw, pub)
	} else {
		err = runScan(ctx, cfg, hw, db, pub, o.PlotsDir)
	}
	if err != nil {
		return err
	}

	if o.Listen == "" {
		return nil
	}
	return serve(ctx, o.Listen, db, hw)
}

func runScan(ctx context.Context, cfg *config.Config, st *rig, db *store.Store, pub *telemetry.Publisher, plotsDir string) error {
	bundle := scan.Hardware{
		Camera:    st.camera,
		Stage:     st.stage,
		Detector:  st.detector,
		Sharpness: imaging.GradientSharpness,
	}
	if pub != nil {
		bundle.Signaler = pub
	}
	runner, err := scan.NewRunner(cfg, bundle,
		scan.WithTiltAverager(scan.NewTiltAverager(cfg.GetDynamicTiltWindow())))
	if err != nil {
		return err
	}

	d, runErr := runner.Run(ctx)
	if d == nil {
		return runErr
	}
	// The verdict is recorded even when the run was cancelled.
	if err := db.RecordScan(context.WithoutCancel(ctx), d); err != nil {
		return errors.Join(runErr, err)
	}
	log.Printf("scan %s: %s (%s) target_z=%.4f tilt=(%.4f, %.4f)", d.ID, d.State, d.Reason, d.TargetZ, d.TiltA, d.TiltB)

	if plotsDir != "" {
		paths, err := report.SaveLayerPlots(plotsDir, d.ID, report.FromDecision(d))
		if err != nil {
			monitoring.Logf("[report] %v", err)
		}
		for _, p := range paths {
			log.Printf("wrote %s", p)
		}
	}

	var tv *scan.ToleranceViolation
	if errors.As(runErr, &tv) {
		// A rejected unit is a normal outcome for the station.
		return nil
	}
	return runErr
}

func runGate(ctx context.Context, cfg *config.Config, st *rig, pub *telemetry.Publisher) error {
	gate := mtf.NewGate(cfg, st.camera, st.detector, imaging.GradientSharpness)
	res, err := gate.Check(ctx)
	if err != nil {
		return err
	}
	log.Printf("mtf gate: passed=%v (%s)", res.Passed, res.Reason)
	if pub != nil {
		if err := pub.PublishMTF(ctx, res); err != nil {
			monitoring.Logf("[telemetry] %v", err)
		}
	}
	return nil
}

func serve(ctx context.Context, addr string, db *store.Store, st *rig) error {
	mux := http.NewServeMux()
	report.NewServer(db).Register(mux)
	if err := db.AttachAdminRoutes(mux); err != nil {
		return err
	}
	st.attachAdminRoutes(mux)

	server := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			monitoring.Debugf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		}),
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving reports on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
