package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/outputcache/outputcache"
	outputcacheconfig "github.com/outputcache/outputcache/config"
	"github.com/outputcache/outputcache/store"
	"github.com/outputcache/outputcache/store/sqlite"
)

var (
	addrFlag           string
	configFlag         string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&addrFlag, "addr", ":8080", "Address to listen on")
	flag.StringVar(&configFlag, "config", "", "Path to a YAML configuration file")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	opts := outputcacheconfig.Options{UseCaseSensitivePaths: true}
	if configFlag != "" {
		loaded, err := outputcacheconfig.Load(configFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load configuration")
		}
		opts = loaded
	}

	var backend store.Backend
	if opts.SQLitePath != "" {
		sqliteStore, err := sqlite.New(opts.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not open sqlite store")
		}
		defer sqliteStore.Close()
		backend = sqliteStore
	} else {
		backend = store.NewMemoryStore(opts.SizeLimit)
	}

	pathCase := outputcache.PathCasePreserve
	if !opts.UseCaseSensitivePaths {
		pathCase = outputcache.PathCaseInsensitive
	}

	cache, err := outputcache.New(outputcache.Config{
		Store:             backend,
		MaximumBodySize:   opts.MaximumBodySize,
		DefaultExpiration: opts.DefaultExpiration,
		PathCase:          pathCase,
		Logger:            &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not construct output cache")
	}

	router := chi.NewRouter()
	router.Use(cache.Middleware)
	router.Get("/greeting", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=30")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello from a cacheable handler"))
	})
	router.Get("/private", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte("this response is never cached"))
	})

	log.Info().Str("addr", addrFlag).Msg("listening")
	if err := http.ListenAndServe(addrFlag, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
