// Command co2mon runs the CO2 monitor appliance: it reads the sensor,
// drives the extractor fan, runs the front panel and watches the network.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/config"
	"github.com/sweeney/co2mon/internal/display"
	"github.com/sweeney/co2mon/internal/gpio"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/message"
	"github.com/sweeney/co2mon/internal/monitor"
	"github.com/sweeney/co2mon/internal/mqtt"
	"github.com/sweeney/co2mon/internal/netmon"
	"github.com/sweeney/co2mon/internal/restart"
	"github.com/sweeney/co2mon/internal/status"
	"github.com/sweeney/co2mon/internal/store"
	"github.com/sweeney/co2mon/internal/watchdog"
	"github.com/sweeney/co2mon/internal/web"
)

// errExitFailure asks main to exit non-zero so the supervisor restarts us.
var errExitFailure = errors.New("terminated after failure")

func main() {
	configPath := flag.String("config", "", "Path to co2mon.yml (default: search /etc/co2mon, configs, .)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	httpAddr := flag.String("http", "", "HTTP status address override (\"off\" disables)")
	broker := flag.String("broker", "", "MQTT broker override (\"off\" disables)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, *logLevel, *httpAddr, *broker)

	if *printConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if err := run(cfg); err != nil {
		if errors.Is(err, errExitFailure) {
			os.Exit(1)
		}
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides folds command line values into cfg. "off" clears an
// address.
func applyOverrides(cfg *config.Config, logLevel, httpAddr, broker string) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
}

func run(cfg *config.Config) error {
	lg := logger.Get(cfg.Log.Level)
	defer lg.Sync()

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		lg.Warnw("config adjusted", "detail", w)
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New()
	lg.Infow("starting", "run", runID.String(), "sensor", cfg.Sensor.Type, "netDevice", cfg.Net.Device)

	db, err := store.InitDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restarts := restart.NewManager(store.NewRestartStore(db), restart.RealSystem{}, lg.Named("restart"))
	prev, err := restarts.Startup(ctx, time.Now())
	if err != nil {
		lg.Errorw("restart record", "error", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		SensorType: cfg.Sensor.Type,
		NetDevice:  cfg.Net.Device,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	})
	tracker.SetLastRestart(prev.ReasonOrCrash().String())
	if info, err := config.ReadNetworkInfo(cfg.Net.EnvFile); err != nil {
		lg.Warnw("read network info", "file", cfg.Net.EnvFile, "error", err)
	} else if info != nil {
		tracker.SetNetwork(info)
	}

	hw, err := openHardware(cfg, lg.Named("gpio"))
	if err != nil {
		return err
	}
	defer hw.Close()

	b := bus.New(bus.Options{})
	defer b.Close()

	workers := startWorkers(ctx, b, hw, lg)

	coord := NewCoordinator(CoordinatorOptions{
		Bus:     b,
		Workers: workers.names,
		Configs: []message.Message{cfg.Co2ConfigMsg(), cfg.NetConfigMsg(), cfg.UIConfigMsg()},
		FanBase: *cfg.FanConfigMsg().FanConfig,
		Fans:    store.NewConfigStore(db),
		Tracker: tracker,
		Log:     lg.Named("coordinator"),
	})

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Log:                lg.Named("mqtt"),
			OnFanCommand:       coord.ExternalFanConfig,
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			lg.Errorw("mqtt disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer pub.Close()
			coord.pub = pub
			coord.mqttConn = pub
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, lg.Named("web"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				lg.Errorw("http server", "error", err)
			}
		}()
		lg.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	out, herr := coord.Handshake(ctx)
	if herr == nil {
		coord.PublishSystem("STARTUP", prev.ReasonOrCrash().String())

		notifier := watchdog.NewNotifier()
		if err := notifier.Ready(); err != nil {
			lg.Warnw("notify ready", "error", err)
		}
		kicker := watchdog.NewKicker(notifier, lg.Named("watchdog"))
		kicker.Healthy = func() bool { return tracker.Snapshot().Ready() }
		go kicker.Run(ctx, cfg.WatchdogPeriod())
		defer notifier.Stopping()

		var heartbeat <-chan time.Time
		if p := cfg.HeartbeatPeriod(); p > 0 {
			t := time.NewTicker(p)
			defer t.Stop()
			heartbeat = t.C
		}
		out = coord.RunLoop(ctx, signalNames(ctx, sigCh), heartbeat)
	} else {
		lg.Errorw("handshake failed", "error", herr)
	}

	lg.Infow("terminating", "cause", out.Cause.String(), "reason", out.Reason)
	coord.PublishSystem("SHUTDOWN", out.Reason)
	coord.Teardown(workers.done)
	cancel()

	d, err := restarts.Stop(context.Background(), out.Cause, out.Request, coord.Readings(), time.Now())
	if err != nil {
		lg.Errorw("restart policy", "error", err)
	}
	if d.Action == restart.ActionExitFailure {
		return errExitFailure
	}
	return nil
}

// signalNames converts OS signals into the names reported on shutdown.
func signalNames(ctx context.Context, sig <-chan os.Signal) <-chan string {
	out := make(chan string, 1)
	go func() {
		select {
		case <-ctx.Done():
		case s := <-sig:
			out <- signalName(s)
		}
	}()
	return out
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// hardware bundles the GPIO collaborators.
type hardware struct {
	fan       *gpio.Relay
	backlight *gpio.Switch
	buttons   gpio.Buttons
}

func openHardware(cfg *config.Config, lg *logger.Logger) (*hardware, error) {
	if cfg.GPIO.Disabled {
		lg.Infow("gpio disabled, using fakes")
		return &hardware{
			fan:     gpio.NewRelay(&gpio.FakeOutput{}, false),
			buttons: gpio.NewFakeButtons(),
		}, nil
	}

	fanLine, err := gpio.NewOutputLine(cfg.GPIO.Chip, cfg.GPIO.FanPin)
	if err != nil {
		return nil, fmt.Errorf("open fan relay: %w", err)
	}
	hw := &hardware{fan: gpio.NewRelay(fanLine, false)}

	if bl, err := gpio.NewOutputLine(cfg.GPIO.Chip, cfg.GPIO.BacklightPin); err != nil {
		lg.Warnw("backlight unavailable", "pin", cfg.GPIO.BacklightPin, "error", err)
	} else {
		hw.backlight = gpio.NewSwitch(bl)
	}

	if btn, err := gpio.NewButtons(cfg.GPIO.Chip, cfg.GPIO.ButtonPins); err != nil {
		lg.Warnw("buttons unavailable", "pins", cfg.GPIO.ButtonPins, "error", err)
	} else {
		hw.buttons = btn
	}
	return hw, nil
}

func (h *hardware) Close() {
	if h.buttons != nil {
		h.buttons.Close()
	}
	if h.backlight != nil {
		h.backlight.Close()
	}
	h.fan.Close()
}

// buttonEvents maps 1-based button numbers onto screen events. Only the
// page buttons exist in hardware; see display.Deps.Input for the rest.
func buttonEvents(ctx context.Context, presses <-chan int) <-chan display.ScreenEvent {
	out := make(chan display.ScreenEvent, 4)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-presses:
				if !ok {
					return
				}
				ev, known := buttonEvent(n)
				if !known {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out
}

func buttonEvent(n int) (display.ScreenEvent, bool) {
	switch n {
	case 1:
		return display.Button1, true
	case 2:
		return display.Button2, true
	case 3:
		return display.Button3, true
	case 4:
		return display.Button4, true
	}
	return display.EventNone, false
}

type runningWorkers struct {
	names []string
	done  chan struct{}
}

// startWorkers connects every worker to the bus and runs it. done is
// closed when all of them have returned.
func startWorkers(ctx context.Context, b *bus.Bus, hw *hardware, lg *logger.Logger) runningWorkers {
	var input <-chan display.ScreenEvent
	if hw.buttons != nil {
		input = buttonEvents(ctx, hw.buttons.Presses())
	}
	var backlight display.BacklightDriver
	if hw.backlight != nil {
		backlight = hw.backlight
	}

	type runner interface {
		Run(ctx context.Context) error
	}
	all := map[string]runner{
		monitor.Name: monitor.New(b.Connect(monitor.Name), monitor.Deps{
			Fan: hw.fan,
			OpenLog: func(dir string) (monitor.ReadingLog, error) {
				return store.OpenReadingLog(dir)
			},
			Log: lg.Named(monitor.Name),
		}, monitor.DefaultSettings()),
		display.Name: display.New(b.Connect(display.Name), display.Deps{
			Backlight: backlight,
			Input:     input,
			Log:       lg.Named(display.Name),
		}, display.DefaultSettings()),
		netmon.Name: netmon.New(b.Connect(netmon.Name), netmon.Deps{
			Log: lg.Named(netmon.Name),
		}, netmon.DefaultSettings()),
	}

	rw := runningWorkers{done: make(chan struct{})}
	var wg sync.WaitGroup
	for name, w := range all {
		rw.names = append(rw.names, name)
		wg.Add(1)
		go func(name string, w runner) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				lg.Warnw("worker exited", "worker", name, "error", err)
			}
		}(name, w)
	}
	go func() {
		wg.Wait()
		close(rw.done)
	}()
	return rw
}
