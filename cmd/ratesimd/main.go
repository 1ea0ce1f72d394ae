package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/internal/bus"
	"main/internal/coord"
	"main/internal/dist"
	"main/internal/formula"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pub"
	"main/internal/sim"
	"main/internal/store"
	"main/internal/subscriber"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("ratesimd: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/ratesim.yaml", "path to YAML config")
	pyroscopeAddr := flag.String("pyroscope", "", "pyroscope server address (empty disables profiling)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "ratesimd",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}
	engine, err := sim.NewEngine(loaded.Sim, loaded.Calendar)
	if err != nil {
		return err
	}
	if _, err := ops.Watch(*configPath, func(next ops.Loaded) {
		if err := engine.UpdateConfig(next.Sim); err != nil {
			logs.Warnf("simulation config update rejected: %+v", err)
		}
	}); err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(loaded.Pub.QueueSize)
	defer queue.Close()

	coordinator := coord.New(formula.NewEngine(), queue, metrics)

	// calc definitions: file source overlaid by the database
	var storedDefs []model.CalcDef
	if loaded.UseStore {
		calcStore, err := store.Open(loaded.StoreOpt)
		if err != nil {
			return err
		}
		defer calcStore.Close()
		storedDefs, err = calcStore.Load(ctx)
		if err != nil {
			return err
		}
	}
	if loaded.Formula.Path != "" {
		source := formula.NewFileSource(loaded.Formula.Path)
		fileDefs, err := source.Load()
		if err != nil {
			return err
		}
		coordinator.SetCalcDefs(store.Merge(fileDefs, storedDefs))
		go source.Watch(ctx, time.Duration(loaded.Formula.PollMs)*time.Millisecond, func(defs []model.CalcDef) {
			coordinator.SetCalcDefs(store.Merge(defs, storedDefs))
		})
	} else {
		coordinator.SetCalcDefs(storedDefs)
	}

	// distribution surfaces
	server, err := dist.NewServer(loaded.Dist.TCPAddr, loaded.Dist.MaxConns, coordinator, metrics)
	if err != nil {
		return err
	}
	if err := server.Listen(ctx); err != nil {
		return err
	}
	defer server.Close()
	coordinator.AddSink(server)

	if loaded.Dist.WSAddr != "" {
		gateway := dist.NewGateway(coordinator, loaded.Dist.MaxConns, metrics)
		coordinator.AddSink(gateway)
		go func() {
			if err := gateway.Listen(ctx, loaded.Dist.WSAddr); err != nil {
				logs.Errorf("websocket gateway stopped: %+v", err)
			}
		}()
	}

	// external publishers fed from the queue
	publisher, err := buildPublisher(loaded.Pub)
	if err != nil {
		return err
	}
	defer publisher.Close()
	go pub.Drain(ctx, queue, publisher)

	// subscriber adapters under supervision
	registry := subscriber.NewRegistry(engine)
	adapters := make([]subscriber.Adapter, 0, len(loaded.Adapters))
	for _, cfg := range loaded.Adapters {
		adapter, err := registry.Build(cfg, coordinator, metrics.Adapter(cfg.Platform))
		if err != nil {
			return err
		}
		adapters = append(adapters, adapter)
	}
	supervisor := subscriber.NewSupervisor(adapters, loaded.SupTick, loaded.Supervisor)
	go supervisor.Run(ctx)

	go metrics.LogLoop(ctx.Done(), loaded.MetricsLog, func(snap obs.Snapshot) {
		logs.Infof("rates raw=%d derived=%d drops=%d broadcasts=%d errs=%d sessions=%d",
			snap.RawRates, snap.DerivedRates, snap.QueueDrops,
			snap.Broadcasts, snap.BroadcastErrs, server.SessionCount())
	})

	logs.Infof("ratesimd up, %d adapters, tcp %s", len(adapters), loaded.Dist.TCPAddr)
	<-ctx.Done()
	logs.Info("ratesimd shutting down")
	return nil
}

func buildPublisher(cfg ops.PubConfig) (pub.Publisher, error) {
	var publishers []pub.Publisher
	if cfg.Kafka.Enabled {
		kp, err := pub.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, kp)
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rp, err := pub.NewRedisPublisher(client)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, rp)
	}
	return pub.NewFanout(publishers...), nil
}
