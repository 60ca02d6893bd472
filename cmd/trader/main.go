package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/console"
	"main/internal/core"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
	"main/internal/state"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 5*time.Second, "Config reload poll interval (0=disable)")
	recoverEnabled := flag.Bool("recover", false, "Recover positions from snapshot + audit journal before start")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if loaded.Obs.Pyroscope.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Obs.Pyroscope.AppName,
			ServerAddress:   loaded.Obs.Pyroscope.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	journal, err := recorder.NewJournal(loaded.Audit.Journal)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	if err := journal.Start(ctx); err != nil {
		log.Fatalf("journal start failed: %v", err)
	}

	sinks := []audit.Sink{audit.NewJournalSink(journal)}
	if loaded.Audit.Archive != nil {
		archive, err := audit.NewArchiveSink(*loaded.Audit.Archive)
		if err != nil {
			log.Fatalf("archive init failed: %v", err)
		}
		sinks = append(sinks, archive)
	}
	publisher := audit.NewPublisher(loaded.Audit.QueueSize, sinks...)
	publisher.Start(ctx)
	defer func() {
		if err := publisher.Close(); err != nil {
			logs.Errorf("audit close: %+v", err)
		}
	}()

	metrics := obs.NewMetrics()
	if loaded.Obs.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server := &http.Server{Addr: loaded.Obs.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Errorf("metrics server: %+v", err)
			}
		}()
		defer server.Close()
	}

	engine, err := core.NewEngine(loaded.Core, loaded.Registry)
	if err != nil {
		log.Fatalf("core init failed: %v", err)
	}
	engine.SetPublisher(publisher)
	engine.SetMetrics(metrics)
	go engine.Run(ctx)

	if *recoverEnabled {
		if err := recoverPositions(ctx, engine, loaded); err != nil {
			log.Fatalf("recover failed: %v", err)
		}
	}

	client, err := feed.NewClient(loaded.Feed, loaded.Registry, engine.PostQuote)
	if err != nil {
		log.Fatalf("feed init failed: %v", err)
	}
	client.SetAlertSink(schema.AlertFunc(func(alert schema.Alert) {
		publisher.Alert(audit.SourceFeed, alert)
	}))
	go client.Run(ctx)

	if loaded.Console.Socket != "" {
		srv, err := console.NewServer(loaded.Console.Socket, engine)
		if err != nil {
			log.Fatalf("console init failed: %v", err)
		}
		if err := srv.Start(ctx); err != nil {
			log.Fatalf("console start failed: %v", err)
		}
		defer srv.Close()
		logs.Infof("console listening on %s", srv.Path())
	}

	if *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, func(next ops.Loaded) {
			applyRiskUpdate(ctx, engine, next)
		})
	}

	if loaded.State.SnapshotPath != "" && loaded.State.SnapshotIntervalSec > 0 {
		go snapshotLoop(ctx, engine, publisher, loaded)
	}

	logs.Infof("trader up, account %d, %d instruments",
		loaded.Core.Risk.AccountID, loaded.Registry.InstrumentCount())
	<-ctx.Done()
	logs.Infof("trader shutting down")
}

// recoverPositions folds the recovered net positions back into the
// core as external fills.
func recoverPositions(ctx context.Context, engine *core.Engine, loaded ops.Loaded) error {
	result, err := state.RecoverPositions(ctx, state.RecoverConfig{
		JournalDir:    loaded.Audit.Journal.Dir,
		SnapshotPath:  loaded.State.SnapshotPath,
		SegmentPrefix: loaded.Audit.Journal.SegmentPrefix,
	})
	if err != nil {
		return err
	}
	snapshot := result.Positions.Snapshot()
	for _, entry := range snapshot.Positions {
		if entry.NetPos == 0 {
			continue
		}
		side := schema.OrderSideBuy
		qty := entry.NetPos
		if qty < 0 {
			side = schema.OrderSideSell
			qty = -qty
		}
		fill := schema.Fill{
			Type:         schema.FillTypeExternal,
			AccountID:    entry.AccountID,
			StrategyID:   entry.StrategyID,
			InstrumentID: entry.InstrumentID,
			Side:         side,
			Qty:          qty,
		}
		if err := engine.PostExternalFill(ctx, fill); err != nil {
			return err
		}
	}
	logs.Infof("recovered %d position entries through seq %d", len(snapshot.Positions), result.LastSeq)
	return nil
}

// applyRiskUpdate pushes reloaded account and instrument limits into
// the running core through the command path.
func applyRiskUpdate(ctx context.Context, engine *core.Engine, loaded ops.Loaded) {
	riskCfg := loaded.Core.Risk
	accountID := uitoa(uint32(riskCfg.AccountID))

	for instrumentID, params := range riskCfg.Instruments {
		cmd := schema.Command{
			Type:    schema.CommandTypeControl,
			SubType: schema.CommandSubTypeUpdateAccountInstrument,
			Params: map[string]string{
				"accountId":    accountID,
				"instrumentId": uitoa(uint32(instrumentID)),
				"tradeEnabled": boolString(params.TradeEnabled),
				"clipSize":     itoa(int64(params.ClipSize)),
				"maxPos":       itoa(int64(params.MaxPos)),
			},
		}
		if _, err := engine.Execute(ctx, cmd); err != nil {
			logs.Errorf("apply instrument update: %+v", err)
			return
		}
	}

	cmd := schema.Command{
		Type:    schema.CommandTypeControl,
		SubType: schema.CommandSubTypeUpdateAccount,
		Params: map[string]string{
			"accountId": accountID,
			"enabled":   boolString(riskCfg.Enabled),
		},
	}
	if _, err := engine.Execute(ctx, cmd); err != nil {
		logs.Errorf("apply account update: %+v", err)
	}
}

// snapshotLoop periodically persists net positions for fast recovery.
func snapshotLoop(ctx context.Context, engine *core.Engine, publisher *audit.Publisher, loaded ops.Loaded) {
	interval := time.Duration(loaded.State.SnapshotIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeSnapshot(context.Background(), engine, publisher, loaded)
			return
		case <-ticker.C:
			writeSnapshot(ctx, engine, publisher, loaded)
		}
	}
}

func writeSnapshot(ctx context.Context, engine *core.Engine, publisher *audit.Publisher, loaded ops.Loaded) {
	resp, err := engine.Execute(ctx, schema.Command{
		Type:    schema.CommandTypeQuery,
		SubType: schema.CommandSubTypeListPositions,
	})
	if err != nil {
		logs.Warnf("snapshot query: %+v", err)
		return
	}

	var positions struct {
		Strategy []struct {
			StrategyID   schema.StrategyID   `json:"strategyId"`
			InstrumentID schema.InstrumentID `json:"instrumentId"`
			NetPos       schema.Quantity     `json:"netPos"`
		} `json:"strategy"`
	}
	if err := sonic.UnmarshalString(resp.Body, &positions); err != nil {
		logs.Warnf("snapshot decode: %+v", err)
		return
	}

	reducer := state.NewPositionReducer()
	for _, entry := range positions.Strategy {
		if entry.NetPos == 0 {
			continue
		}
		side := schema.OrderSideBuy
		qty := entry.NetPos
		if qty < 0 {
			side = schema.OrderSideSell
			qty = -qty
		}
		reducer.ApplyFill(schema.Fill{
			Type:         schema.FillTypeExternal,
			AccountID:    loaded.Core.Risk.AccountID,
			StrategyID:   entry.StrategyID,
			InstrumentID: entry.InstrumentID,
			Side:         side,
			Qty:          qty,
		})
	}

	snapshot := reducer.SnapshotWithMeta(publisher.Seq(), time.Now().UTC().UnixNano())
	if err := state.WriteSnapshot(loaded.State.SnapshotPath, snapshot); err != nil {
		logs.Errorf("snapshot write: %+v", err)
		return
	}
	logs.Infof("snapshot written, %d entries", len(snapshot.Positions))
}

func uitoa(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func boolString(v bool) string { return strconv.FormatBool(v) }
