package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/canvasindex/featureflag"
	"github.com/aukilabs/canvasindex/geometry"
	canvashttp "github.com/aukilabs/canvasindex/http"
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/canvasindex/modules"
	"github.com/aukilabs/canvasindex/modules/canvassize"
	"github.com/aukilabs/canvasindex/modules/hover"
	"github.com/aukilabs/canvasindex/modules/selection"
	"github.com/aukilabs/canvasindex/poller"
	"github.com/aukilabs/canvasindex/scenario"
	"github.com/aukilabs/canvasindex/viewport"
	"github.com/aukilabs/canvasindex/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The canvasindex version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "canvasindex_info",
		Help:        "Canvasindex information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                  string        `cli:""        env:"CANVASINDEX_ADDR"                    help:"Listening address for the inspection endpoints."`
	AdminAddr             string        `cli:""        env:"CANVASINDEX_ADMIN_ADDR"              help:"Admin listening address."`
	LogLevel              string        `cli:""        env:"CANVASINDEX_LOG_LEVEL"               help:"Log level (debug|info|warning|error)."`
	LogIndent             bool          `cli:""        env:"CANVASINDEX_LOG_INDENT"              help:"Indent logs."`
	Scenario              string        `cli:""        env:"CANVASINDEX_SCENARIO"                help:"The scenario file that lays out the canvas elements."`
	Replay                bool          `cli:""        env:"CANVASINDEX_REPLAY"                  help:"Replays the scenario with a manual poller, prints the results and exits."`
	APIToken              string        `cli:""        env:"CANVASINDEX_API_TOKEN"               help:"The token required by the query, debug, editor and stream endpoints."`
	ViewWidth             float64       `cli:",hidden" env:"CANVASINDEX_VIEW_WIDTH"              help:"The width of the editor view."`
	ViewHeight            float64       `cli:",hidden" env:"CANVASINDEX_VIEW_HEIGHT"             help:"The height of the editor view."`
	Capacity              int           `cli:",hidden" env:"CANVASINDEX_CAPACITY"                help:"The number of elements that makes a spatial index leaf split."`
	MaxDepth              int           `cli:",hidden" env:"CANVASINDEX_MAX_DEPTH"               help:"The maximum depth of the spatial index."`
	VisibilityMargin      float64       `cli:",hidden" env:"CANVASINDEX_VISIBILITY_MARGIN"       help:"The ratio of the visible window added on each side when deciding which elements to poll."`
	PollInterval          time.Duration `cli:",hidden" env:"CANVASINDEX_POLL_INTERVAL"           help:"The duration between each poller slice."`
	PollBudget            time.Duration `cli:",hidden" env:"CANVASINDEX_POLL_BUDGET"             help:"The time a poller slice can spend measuring elements."`
	PollMaxItems          int           `cli:",hidden" env:"CANVASINDEX_POLL_MAX_ITEMS"          help:"The maximum number of elements measured by a poller slice."`
	CanvasDebounce        time.Duration `cli:",hidden" env:"CANVASINDEX_CANVAS_DEBOUNCE"         help:"The delay before a canvas size change is applied."`
	StreamQueueSize       int           `cli:",hidden" env:"CANVASINDEX_STREAM_QUEUE_SIZE"       help:"The number of rect changes buffered per stream client."`
	StreamSummaryInterval time.Duration `cli:",hidden" env:"CANVASINDEX_STREAM_SUMMARY_INTERVAL" help:"The duration between each log summary by stream client."`
	Events                eventsConfig  `cli:",hidden" env:"-"                                   help:"Event pusher configuration."`
	FeatureFlags          []string      `cli:",hidden" env:"CANVASINDEX_FEATURE_FLAGS"           help:"Comma separated feature flags"`
	Version               bool          `cli:""        env:"-"                                   help:"Show version."`
	Help                  bool          `cli:""        env:"-"                                   help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"CANVASINDEX_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"CANVASINDEX_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"CANVASINDEX_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"CANVASINDEX_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:                  ":4000",
		AdminAddr:             ":18190",
		LogLevel:              logs.InfoLevel.String(),
		ViewWidth:             1280,
		ViewHeight:            720,
		Capacity:              5,
		MaxDepth:              12,
		VisibilityMargin:      models.DefaultVisibilityMargin,
		PollInterval:          time.Millisecond * 100,
		PollBudget:            time.Millisecond * 8,
		PollMaxItems:          200,
		CanvasDebounce:        time.Millisecond * 50,
		StreamQueueSize:       websocket.DefaultQueueSize,
		StreamSummaryInterval: websocket.DefaultSummaryInterval,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the canvas spatial index server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "canvasindex",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	var script *scenario.Script
	if conf.Scenario != "" {
		s, err := loadScenario(conf.Scenario)
		if err != nil {
			logs.Fatal(err)
		}
		script = s
	}

	if conf.Replay {
		if err := replay(conf, script); err != nil {
			logs.Fatal(err)
		}
		return
	}

	serve(ctx, conf, script)
}

func serve(ctx context.Context, conf config, script *scenario.Script) {
	flags := featureflag.New(conf.FeatureFlags)
	viewSize := geometry.Size{Width: conf.ViewWidth, Height: conf.ViewHeight}

	p := poller.New(poller.TimerScheduler{
		Interval: conf.PollInterval,
		Budget:   conf.PollBudget,
	}, poller.Config{
		MaxItemsPerSlice: conf.PollMaxItems,
	})
	p.Start()
	defer p.Stop()

	v := viewport.New(viewSize, viewSize)
	v.CanvasSizeDebounce = conf.CanvasDebounce
	defer v.Close()

	registry := models.NewRegistry(registryConfig(conf, viewSize, flags), p)
	defer registry.Close()
	defer registry.Bind(v)()

	hoverModule := &hover.Module{
		IgnoreRectChanges: flags.IsSet(featureflag.FlagDisableHoverTracking),
	}
	selectionModule := &selection.Module{}
	mods := []modules.Module{hoverModule, selectionModule}
	flags.IfNotSet(featureflag.FlagDisableCanvasAutoSize, func() {
		mods = append(mods, &canvassize.Module{
			Sink:    v,
			MinSize: viewSize,
		})
	})
	defer modules.Attach(registry, mods...)()

	if script != nil {
		runner := scenario.Runner{
			Registry: registry,
			Viewport: v,
			Layout:   scenario.NewLayout(),
			Poll: func(slices int) {
				time.Sleep(conf.PollInterval * time.Duration(slices))
			},
		}
		results, err := runner.Run(script)
		if err != nil {
			logs.Fatal(errors.New("laying out the scenario failed").
				WithTag("scenario", conf.Scenario).
				Wrap(err))
		}
		logs.WithTag("scenario", conf.Scenario).
			WithTag("elements", registry.Len()).
			WithTag("results", len(results)).
			Info("scenario laid out")
	}

	var service http.ServeMux
	canvashttp.Routes{
		Index:    registry,
		Hover:    hoverModule,
		Select:   selectionModule,
		Version:  version,
		APIToken: conf.APIToken,
	}.Register(&service)

	stream := websocket.Stream{
		Source:          registry,
		QueueSize:       conf.StreamQueueSize,
		SummaryInterval: conf.StreamSummaryInterval,
	}
	service.Handle("/stream", canvashttp.RequireToken(conf.APIToken, stream.Handler(ctx)))

	readinessCheck := func() bool {
		return p.Running()
	}
	service.Handle("/ready", canvashttp.HandleWithCORS(canvashttp.HandleReadyCheck(readinessCheck)))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", canvashttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", canvashttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("registry_uuid", registry.UUID).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting canvasindex server")

	canvashttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			canvashttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

// replay runs the scenario against a registry polled by hand and prints the
// query results as JSON.
func replay(conf config, script *scenario.Script) error {
	flags := featureflag.New(conf.FeatureFlags)
	viewSize := geometry.Size{Width: conf.ViewWidth, Height: conf.ViewHeight}

	scheduler := &poller.ManualScheduler{}
	p := poller.New(scheduler, poller.Config{
		MaxItemsPerSlice: conf.PollMaxItems,
	})
	p.Start()
	defer p.Stop()

	v := viewport.New(viewSize, viewSize)
	defer v.Close()

	registry := models.NewRegistry(registryConfig(conf, viewSize, flags), p)
	defer registry.Close()
	defer registry.Bind(v)()

	runner := scenario.Runner{
		Registry: registry,
		Viewport: v,
		Layout:   scenario.NewLayout(),
		Poll: func(slices int) {
			for i := 0; i < slices; i++ {
				scheduler.RunIdle(conf.PollBudget)
			}
		},
	}

	results, err := runner.Run(script)

	out, merr := json.MarshalIndent(results, "", "  ")
	if merr != nil {
		return errors.New("encoding replay results failed").Wrap(merr)
	}
	fmt.Println(string(out))

	if err != nil {
		return errors.New("replaying scenario failed").
			WithTag("scenario", conf.Scenario).
			Wrap(err)
	}
	return nil
}

func registryConfig(conf config, viewSize geometry.Size, flags featureflag.FeatureFlag) models.RegistryConfig {
	return models.RegistryConfig{
		Universe:         viewSize,
		Capacity:         conf.Capacity,
		MaxDepth:         conf.MaxDepth,
		VisibilityMargin: conf.VisibilityMargin,
		FeatureFlags:     flags,
	}
}

func loadScenario(filename string) (*scenario.Script, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.New("opening scenario failed").
			WithTag("file_name", filename).
			Wrap(err)
	}
	defer f.Close()

	return scenario.Parse(f)
}

func validateConfig(conf config) error {
	if conf.Replay && conf.Scenario == "" {
		return errors.New("replay requires a scenario")
	}

	if conf.ViewWidth <= 0 || conf.ViewHeight <= 0 {
		return errors.New("invalid view size").
			WithTag("width", conf.ViewWidth).
			WithTag("height", conf.ViewHeight)
	}

	if conf.PollInterval <= 0 {
		return errors.New("poll interval must be positive").
			WithTag("poll_interval", conf.PollInterval)
	}

	return nil
}
