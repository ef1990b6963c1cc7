package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RishabSBanthiya/highace/pkg/chain"
	"github.com/RishabSBanthiya/highace/pkg/config"
	"github.com/RishabSBanthiya/highace/pkg/logging"
	"github.com/RishabSBanthiya/highace/pkg/server"
)

func main() {
	var (
		cfgPath    string
		dbPath     string
		host       string
		port       int
		seed       int64
		debugLevel string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&host, "host", "", "Host to listen on")
	flag.IntVar(&port, "port", 0, "Port to listen on")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.StringVar(&debugLevel, "debuglevel", "", "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override the file.
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if debugLevel != "" {
		cfg.Logging.DebugLevel = debugLevel
	}

	logBackend, err := logging.NewLogBackend(cfg.Logging.File, cfg.Logging.DebugLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("MAIN")

	dir, err := server.NewRoomDirectory(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer dir.Close()

	if seed == 0 {
		if env := os.Getenv("HIGHACE_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
		log.Warnf("using deterministic deck seed %d", seed)
	}

	srv := server.NewServer(cfg, dir, chain.TestVerifier{}, logBackend, rng)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infof("shutting down")
		srv.Stop()
		dir.Close()
		logBackend.Close()
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
