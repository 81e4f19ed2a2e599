package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/BoothGo/internal/config"
	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
	"github.com/cjeanneret/BoothGo/internal/hw/trigger"
	"github.com/cjeanneret/BoothGo/internal/hw/webcam"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/strip"
	"github.com/cjeanneret/BoothGo/internal/render"
	"github.com/cjeanneret/BoothGo/internal/web"
)

// sourceWarmup bounds how long a headless run waits for the first frame.
const sourceWarmup = 5 * time.Second

// overrides holds CLI values that replace config defaults when non-empty.
type overrides struct {
	Filter filter.ID
	OutDir string
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	filterName := flag.String("filter", "", "initial filter (e.g. 80s, GoldenHour); empty uses config")
	outDir := flag.String("out", "", "directory for the headless strip; empty uses config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid -config: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	id, err := validateFilterFlag(*filterName)
	if err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides{Filter: id, OutDir: *outDir})

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Initial filter", cfg.Booth.DefaultFilter)

	// Initialize video source
	debug.Step(1, "Opening video source")
	src, err := newSourceFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Printf("closing camera failed: %v", err)
		}
	}()
	debug.Value("Camera type", cfg.Camera.Type)

	// Renderer, controller, composer
	debug.Step(2, "Building capture pipeline")
	renderer := render.NewRenderer(newGrainFromConfig(cfg), cfg.Booth.JPEGQuality)
	ctrl := capture.NewController(src, renderer, timingFromConfig(cfg), cfg.DefaultFilter())
	composer, err := strip.NewComposer(layoutFromConfig(cfg))
	if err != nil {
		log.Fatalf("init strip composer failed: %v", err)
	}
	debug.PrintStruct("Timing", ctrl.Timing())

	port := webPort.port()

	// Optional shutter button and lamp
	if cfg.Button.Enabled {
		debug.Step(3, "Initializing shutter button")
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		lamp, err := startTrigger(ctx, cfg, gpioDriver, ctrl, port > 0)
		if err != nil {
			log.Fatalf("init trigger failed: %v", err)
		}
		if lamp != nil {
			// runs before the driver is closed
			defer func() {
				if err := lamp.Off(); err != nil {
					log.Printf("switching lamp off failed: %v", err)
				}
			}()
		}
	}

	if port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(ctx, webAddr, broadcaster, ctrl, src, renderer, composer)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	{
		// Run one sequence and write the strip
		path, err := runHeadless(ctx, ctrl, src, composer, cfg.Strip.OutputDir, sourceWarmup)
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		fmt.Println(path)
	}
}

// runHeadless waits for the source, runs one sequence and writes the strip
// into outDir. It returns the written path.
func runHeadless(ctx context.Context, ctrl *capture.Controller, src camera.Source, composer *strip.Composer, outDir string, warmup time.Duration) (string, error) {
	if err := waitForSource(ctx, src, warmup); err != nil {
		debug.Warn("Starting without a frame: %v", err)
	}

	debug.Section("Starting capture sequence")
	if err := ctrl.Run(ctx); err != nil {
		return "", err
	}

	exp, err := composer.Export(ctrl.Session())
	if err != nil {
		if errors.Is(err, strip.ErrNothingToExport) {
			return "", fmt.Errorf("no usable shots: %w", err)
		}
		return "", err
	}
	path, err := exp.WriteFile(outDir)
	if err != nil {
		return "", err
	}
	sess := ctrl.Session()
	debug.Summary("Sequence Complete")
	debug.Value("Stills", len(sess.Stills))
	debug.Value("Skipped", sess.Skipped)
	debug.Info("Strip written to %s", path)
	return path, nil
}

// waitForSource polls until src is ready, ctx ends or timeout elapses.
func waitForSource(ctx context.Context, src camera.Source, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !src.Ready() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("camera not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// startTrigger wires the shutter button (web mode only) and the lamp.
// The returned lamp is nil when no lamp pin is configured.
func startTrigger(ctx context.Context, cfg *config.Config, drv gpio.Driver, ctrl *capture.Controller, withButton bool) (*trigger.Lamp, error) {
	var lamp *trigger.Lamp
	if cfg.Button.LampPin > 0 {
		var err error
		lamp, err = trigger.NewLamp(drv, cfg.Button.LampPin)
		if err != nil {
			return nil, err
		}
		ctrl.Subscribe(lamp.Observe)
		debug.Value("Lamp pin", cfg.Button.LampPin)
	}
	if !withButton {
		// A headless run starts by itself; the button has nothing to do.
		return lamp, nil
	}
	button, err := trigger.NewButton(drv, cfg.Button.Pin, cfg.Debounce(), cfg.PollInterval(), trigger.StartOnPress(ctx, ctrl))
	if err != nil {
		return nil, err
	}
	debug.Value("Button pin", cfg.Button.Pin)
	go func() {
		if err := button.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			debug.Error(fmt.Errorf("shutter button: %w", err))
		}
	}()
	return lamp, nil
}

// validateFilterFlag canonicalizes -filter. Empty means "use config default".
func validateFilterFlag(s string) (filter.ID, error) {
	if s == "" {
		return "", nil
	}
	id, ok := filter.Parse(s)
	if !ok {
		return "", fmt.Errorf("unknown filter %q (have %v)", s, filter.All())
	}
	return id, nil
}

// applyOverrides mutates cfg with overrides. Only non-empty values are applied.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.Filter != "" {
		cfg.Booth.DefaultFilter = string(o.Filter)
	}
	if o.OutDir != "" {
		cfg.Strip.OutputDir = o.OutDir
	}
}

func timingFromConfig(cfg *config.Config) capture.Timing {
	return capture.Timing{
		Shots:       cfg.Booth.Shots,
		Stages:      append([]string(nil), cfg.Booth.Stages...),
		StageDelay:  cfg.StageDelay(),
		SettleDelay: cfg.SettleDelay(),
		RetryDelay:  cfg.RetryDelay(),
	}
}

func layoutFromConfig(cfg *config.Config) strip.Layout {
	l := strip.DefaultLayout()
	l.Width = cfg.Strip.Width
	l.Padding = cfg.Strip.Padding
	l.Gap = cfg.Strip.Gap
	l.CaptionSize = cfg.Strip.CaptionSize
	l.Quality = cfg.Strip.JPEGQuality
	return l
}

// newGrainFromConfig returns nil when no texture is configured; the 80s
// preset then renders without grain.
func newGrainFromConfig(cfg *config.Config) render.Grain {
	if cfg.Booth.GrainPath == "" {
		return nil
	}
	return render.NewGrainLoader(cfg.Booth.GrainPath, cfg.GrainTimeout())
}

// newSourceFromConfig selects a video source based on configuration.
func newSourceFromConfig(cfg *config.Config) (camera.Source, error) {
	switch cfg.Camera.Type {
	case "mock":
		return camera.NewMock(cfg.Camera.Width, cfg.Camera.Height), nil
	case "webcam":
		src, err := webcam.Open(cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
