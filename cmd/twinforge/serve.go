package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/twinforge/twinforge/pkg/assets"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/engine"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/tables"
	"github.com/twinforge/twinforge/pkg/types"
	"github.com/twinforge/twinforge/pkg/uploads"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the built-in demo components",
	Long: `Start the engine hosting a demo component set: a weather collector
sampling every 30 seconds, an averaging harvester derived from it, an
assets manager, a tileset manager, and a sensors custom table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")

		level := log.InfoLevel
		if debug {
			level = log.DebugLevel
		}
		log.Init(log.Config{Level: level, JSONOutput: true})

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		e := engine.New(cfg)
		if err := registerDemoComponents(e, cfg); err != nil {
			return err
		}

		ctx := context.Background()
		if err := e.Start(ctx); err != nil {
			return err
		}
		log.Logger.Info().Int("port", e.ActualPort()).Msg("twinforge serving")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Logger.Info().Msg("shutting down")
		return e.Stop(ctx)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg := &config.Config{}
	cfg.FromEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// registerDemoComponents wires the demo set: one collector, one harvester
// derived from it, and the three manager variants.
func registerDemoComponents(e *engine.Engine, cfg *config.Config) error {
	weather := component.NewCollector(component.Configuration{
		Name:        "weather",
		ContentType: "application/json",
		Endpoint:    "/weather",
		Description: "Synthetic weather samples",
		Schedule:    "*/30 * * * * *",
	}, collectWeather)

	avg := component.NewHarvester(component.Configuration{
		Name:        "weather_avg",
		ContentType: "application/json",
		Description: "Average over the last five weather samples",
		Source:      "weather",
		SourceRange: "5",
		TriggerMode: types.TriggerOnSource,
	}, harvestAverage)

	manager := assets.NewManager(component.Configuration{
		Name:        "assets",
		Endpoint:    "/assets",
		Description: "User-owned binary assets",
	}, cfg.Auth.AdminRoleName)

	tilesets := uploads.NewTilesetManager(component.Configuration{
		Name:        "tilesets",
		Endpoint:    "/tilesets",
		Description: "3D tileset archives ingested asynchronously",
	}, cfg.Auth.AdminRoleName)

	sensors := tables.NewManager(component.Configuration{
		Name:        "sensors",
		Endpoint:    "/sensors",
		Description: "Registered sensor inventory",
		Columns: []types.ColumnSpec{
			{Name: "label", Type: types.ColumnText, NotNull: true},
			{Name: "latitude", Type: types.ColumnReal},
			{Name: "longitude", Type: types.ColumnReal},
			{Name: "active", Type: types.ColumnBoolean, Default: "TRUE"},
		},
	})

	for _, c := range []component.Component{weather, avg, manager, tilesets, sensors} {
		if err := e.Register(c); err != nil {
			return err
		}
	}
	return nil
}

type weatherSample struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

func collectWeather(ctx context.Context) ([]byte, error) {
	sample := weatherSample{
		Temperature: 15 + rand.Float64()*15,
		Humidity:    40 + rand.Float64()*40,
		Timestamp:   time.Now().UTC(),
	}
	return json.Marshal(sample)
}

func harvestAverage(ctx context.Context, input *component.HarvestInput) (*component.HarvestResult, error) {
	var sumT, sumH float64
	count := 0
	for _, rec := range input.Records {
		payload, err := input.Fetch(ctx, rec)
		if err != nil {
			return nil, err
		}
		var sample weatherSample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return nil, fmt.Errorf("failed to decode weather sample: %w", err)
		}
		sumT += sample.Temperature
		sumH += sample.Humidity
		count++
	}
	if count == 0 {
		return nil, nil
	}

	out, err := json.Marshal(map[string]interface{}{
		"samples":     count,
		"temperature": sumT / float64(count),
		"humidity":    sumH / float64(count),
	})
	if err != nil {
		return nil, err
	}
	return &component.HarvestResult{Payloads: [][]byte{out}}, nil
}
