package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madpsy/ldpcsim/ldpc"
	"github.com/madpsy/ldpcsim/mcpserver"
	"github.com/madpsy/ldpcsim/simdriver"
)

// StartTime tracks process uptime for status reporting.
var StartTime time.Time

func main() {
	StartTime = time.Now()

	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	debugMode := *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		debugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}
	if debugMode {
		log.Println("debug mode enabled")
	}

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	code, err := ldpc.LoadAlist(cfg.CodePath)
	if err != nil {
		log.Fatalf("failed to load parity-check code: %v", err)
	}
	log.Printf("loaded code: n=%d m=%d rate=%.4f", code.N(), code.M(), code.Rate())

	channelKind, err := ldpc.ParseChannelKind(cfg.Channel)
	if err != nil {
		log.Fatalf("invalid channel: %v", err)
	}
	algorithm, err := ldpc.ParseDecoderAlgorithm(cfg.Decoder.Algorithm)
	if err != nil {
		log.Fatalf("invalid decoder algorithm: %v", err)
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = detectWorkerCount()
		log.Printf("autodetected %d worker(s)", workers)
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		log.Fatalf("failed to initialize result sinks: %v", err)
	}

	var metrics *simdriver.SimMetrics
	if cfg.Prometheus.Enabled {
		reg := prometheus.NewRegistry()
		metrics = simdriver.NewSimMetrics(reg, "ldpcsim")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Printf("prometheus metrics listening on %s", cfg.Prometheus.ListenAddr)
			if err := http.ListenAndServe(cfg.Prometheus.ListenAddr, mux); err != nil {
				log.Printf("prometheus server stopped: %v", err)
			}
		}()
	}

	var ws *simdriver.ProgressWebSocket
	if cfg.WebSocket.Enabled {
		ws = simdriver.NewProgressWebSocket()
		sinks = append(sinks, ws)
	}

	driver, err := simdriver.New(simdriver.Config{
		Code:             code,
		Sweep:            simdriver.SweepSpec(cfg.Sweep),
		Threads:          workers,
		Seed:             cfg.Seed,
		ChannelKind:      channelKind,
		DecoderAlgorithm: algorithm,
		MinSumScale:      cfg.Decoder.MinSumScale,
		MaxIterations:    cfg.Decoder.MaxIterations,
		MaxFrames:        cfg.Stop.MaxFrames,
		MinFEC:           cfg.Stop.MinFEC,
		EarlyTermination: cfg.Decoder.EarlyTermination,
		Sinks:            sinks,
		Metrics:          metrics,
	})
	if err != nil {
		log.Fatalf("failed to construct simulation driver: %v", err)
	}
	log.Printf("run %s: %d sweep point(s), %d worker(s)", driver.RunID(), len(driver.SweepPoints()), workers)

	stop := &simdriver.StopFlag{}

	if ws != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/progress", ws.Handler)
		go func() {
			log.Printf("progress websocket listening on %s", cfg.WebSocket.ListenAddr)
			if err := http.ListenAndServe(cfg.WebSocket.ListenAddr, mux); err != nil {
				log.Printf("websocket server stopped: %v", err)
			}
		}()
	}

	if cfg.MCP.Enabled {
		mcpSrv := mcpserver.New(driver, stop)
		go func() {
			log.Printf("mcp server listening on %s", cfg.MCP.ListenAddr)
			if err := http.ListenAndServe(cfg.MCP.ListenAddr, mcpSrv.Handler()); err != nil {
				log.Printf("mcp server stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("received shutdown signal, stopping sweep after the current frame")
		stop.Stop()
	}()

	if err := driver.Start(stop); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
	log.Printf("run %s complete after %s", driver.RunID(), time.Since(StartTime))
}

// buildSinks constructs the results sinks named in the configuration:
// the file sink is always present, MQTT is optional.
func buildSinks(cfg *Config) ([]simdriver.ResultsSink, error) {
	var sinks []simdriver.ResultsSink

	fileSink, err := simdriver.NewFileResultsSink(cfg.OutputPath, len(simdriver.SweepSpec{
		Start: cfg.Sweep.Start, Stop: cfg.Sweep.Stop, Step: cfg.Sweep.Step,
	}.Points()), cfg.Results.LogFrameTime, cfg.Results.ArchiveGzip)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, fileSink)
	sinks = append(sinks, simdriver.NewConsoleSink(os.Stderr))

	if cfg.MQTT.Enabled {
		mqttSink, err := simdriver.NewMQTTSink(simdriver.MQTTConfig{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			Topic:           cfg.MQTT.Topic,
			PublishInterval: time.Duration(cfg.MQTT.PublishInterval) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, mqttSink)
	}

	return sinks, nil
}
