package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/karachiwx/awos/internal/aggregate"
	"github.com/karachiwx/awos/internal/api"
	"github.com/karachiwx/awos/internal/config"
	"github.com/karachiwx/awos/internal/csvlog"
	"github.com/karachiwx/awos/internal/daily"
	"github.com/karachiwx/awos/internal/export"
	"github.com/karachiwx/awos/internal/modbus"
	"github.com/karachiwx/awos/internal/models"
	"github.com/karachiwx/awos/internal/rain"
	"github.com/karachiwx/awos/internal/sensor"
	"github.com/karachiwx/awos/internal/store"
	"github.com/karachiwx/awos/internal/sun"
)

var cli struct {
	Config string `help:"Path to YAML configuration file." default:"awos.yaml" env:"AWOS_CONFIG"`
	CSVDir string `help:"Override CSV output directory." env:"AWOS_CSV_DIR"`
	DB     string `help:"Override SQLite database path." env:"AWOS_DB"`
	Port   string `help:"Override HTTP port." env:"AWOS_PORT"`
	Once   bool   `help:"Poll every sensor once, publish one snapshot and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("awos"),
		kong.Description("Single-station weather observation daemon."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cli.CSVDir != "" {
		cfg.CSV.Dir = cli.CSVDir
	}
	if cli.DB != "" {
		cfg.DB.Path = cli.DB
	}
	if cli.Port != "" {
		cfg.HTTP.Port = cli.Port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	loc := cfg.Location()

	db, err := sql.Open("sqlite", cfg.DB.Path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	sunTable, err := sun.Load(cfg.Sun.DataFile, cfg.Sun.DefaultSunrise, cfg.Sun.DefaultSunset)
	if err != nil {
		log.Fatalf("sun table: %v", err)
	}
	if sunTable.Len() > 0 {
		log.Printf("sun table loaded: %d days", sunTable.Len())
	}

	bus, err := modbus.Open(cfg.Bus)
	if err != nil {
		log.Fatalf("bus: %v", err)
	}
	defer bus.Close()
	log.Printf("bus open on %s", cfg.Bus.Port)

	links := sensor.Links(cfg.Sensors)
	poller := sensor.NewPoller(bus, links, cfg.Polling.Interval.Std(), cfg.Polling.Retries)

	acc := rain.New(cfg.Rain.ResetWindow.Std(), cfg.Rain.NoiseFloor, loc, time.Now())
	acc.OnDailyTotal(func(total models.DailyRainTotal) {
		if err := st.UpsertDailyRain(total); err != nil {
			log.Printf("rain: store daily total: %v", err)
		}
	})

	csvw, err := csvlog.NewWriter(cfg.CSV.Dir, cfg.CSV.RetentionDays, loc)
	if err != nil {
		log.Fatalf("csvlog: %v", err)
	}
	defer csvw.Close()

	server := api.NewServer(st, sunTable, cfg.HTTP.Port, loc, cfg.Station.Name)

	// Sink order is load-bearing: CSV and archive before the HTTP view, so a
	// crash mid-cycle never shows data that was not logged.
	agg := aggregate.New(poller.Mailboxes(), acc, cfg.Polling.CycleInterval.Std(), cfg.Polling.StalenessCycles, csvw, st, server)
	server.SetRefresher(agg)

	if cli.Once {
		log.Println("running single cycle")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		poller.PollOnce(ctx)
		agg.Cycle(time.Now())
		log.Println("done")
		return
	}

	uploader := export.NewUploader(cfg.Export)
	jobs := daily.NewJobs(csvw, st, uploader, loc, cfg.DB.RetentionDays)
	cronJobs, err := jobs.Schedule()
	if err != nil {
		log.Fatalf("daily jobs: %v", err)
	}
	defer cronJobs.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(ctx)
		return nil
	})
	g.Go(func() error {
		agg.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	log.Printf("starting server on :%s", cfg.HTTP.Port)
	if err := g.Wait(); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("shutdown complete")
}
