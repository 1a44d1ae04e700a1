package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mbp10/api/grpcserver"
	"mbp10/api/httpapi"
	"mbp10/config"
	"mbp10/domain/orderbook"
	"mbp10/infra/feed"
	"mbp10/infra/kafka"
	applog "mbp10/infra/log"
	"mbp10/infra/mbpcsv"
	"mbp10/infra/metrics"
	"mbp10/infra/sequence"
	entrywal "mbp10/infra/wal/entry"
	exitwal "mbp10/infra/wal/exit"
	"mbp10/jobs/broadcaster"
	"mbp10/service"
)

const drainTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mbp10:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mbp10", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML config file (overrides $MBP10_CONFIG)")
		in         = fs.String("in", "", "input: CSV file, - for stdin, or journal dir")
		source     = fs.String("source", "", "input kind: csv, journal or kafka")
		out        = fs.String("out", "", "MBP-10 CSV output file, empty to disable")
		journal    = fs.String("journal", "", "journal directory, empty to disable")
		outbox     = fs.String("outbox", "", "outbox directory, empty to disable")
		publish    = fs.String("publish", "", "Kafka topic to publish snapshots to")
		httpAddr   = fs.String("http", "", "HTTP listen address")
		grpcAddr   = fs.String("grpc", "", "gRPC listen address")
		logLevel   = fs.String("log-level", "", "trace, debug, info, warn or error")
		serve      = fs.Bool("serve", false, "keep serving after the input is exhausted")
	)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: mbp10 [flags] [mbo_input_file]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	// ---------------- Config ----------------

	if *configPath != "" {
		if err := os.Setenv("MBP10_CONFIG", *configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "in":
			cfg.Input.Path = *in
		case "source":
			cfg.Input.Source = *source
		case "out":
			cfg.Output.Path = *out
		case "journal":
			cfg.Journal.Dir = *journal
		case "outbox":
			cfg.Outbox.Dir = *outbox
		case "publish":
			cfg.Kafka.PublishTopic = *publish
		case "http":
			cfg.Server.HTTPAddr = *httpAddr
		case "grpc":
			cfg.Server.GRPCAddr = *grpcAddr
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "serve":
			cfg.Server.Serve = *serve
		}
	})
	if fs.NArg() > 0 {
		cfg.Input.Path = fs.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// ---------------- Logging ----------------

	runID := uuid.NewString()
	baseLog, logCloser := applog.NewLogger(cfg)
	defer logCloser.Close()
	logger := baseLog.With().Str("run_id", runID).Logger()

	m := metrics.New()

	// ---------------- Input ----------------

	src, srcCloser, err := openSource(cfg, m)
	if err != nil {
		return err
	}
	defer srcCloser.Close()

	// ---------------- Journal & outbox ----------------

	// Sequences continue from whatever a previous run left in the journal
	// or the outbox, so neither is ever asked to take a number twice.
	var startSeq uint64

	var journalWAL *entrywal.WAL
	if cfg.Journal.Dir != "" {
		journalWAL, err = entrywal.Open(entrywal.Config{
			Dir:         cfg.Journal.Dir,
			SegmentSize: int64(cfg.Journal.SegmentSizeMB) << 20,
			SyncEvery:   cfg.Journal.SyncEvery,
		})
		if err != nil {
			return err
		}
		defer journalWAL.Close()
		startSeq = max(startSeq, journalWAL.NextSeq())
	}

	var box *exitwal.Outbox
	if cfg.Outbox.Dir != "" {
		box, err = exitwal.Open(cfg.Outbox.Dir, exitwal.Options{Sync: cfg.Outbox.Sync, Log: &logger})
		if err != nil {
			return err
		}
		defer box.Close()
		startSeq = max(startSeq, box.NextSeq())
	}

	// ---------------- Service ----------------

	seq := sequence.New(startSeq)
	svc := service.NewBookService(orderbook.New(), seq, m, logger)
	if journalWAL != nil {
		svc.WithJournal(journalWAL)
	}

	var csvOut *mbpcsv.Writer
	if cfg.Output.Path != "" {
		csvOut, err = mbpcsv.Create(cfg.Output.Path, mbpcsv.Metadata{
			PublisherID:  cfg.Output.PublisherID,
			InstrumentID: cfg.Output.InstrumentID,
			Symbol:       cfg.Output.Symbol,
			SequenceBase: cfg.Output.SequenceBase,
		})
		if err != nil {
			return err
		}
		svc.AddSink("csv", csvOut)
	}

	if box != nil {
		svc.AddSink("outbox", box)
	}

	var bc *broadcaster.Broadcaster
	if cfg.Kafka.PublishTopic != "" {
		bc, err = broadcaster.New(box, cfg.Kafka.Brokers, broadcaster.Options{
			Topic:      cfg.Kafka.PublishTopic,
			RunID:      runID,
			BatchSize:  cfg.Kafka.BatchSize,
			Interval:   time.Duration(cfg.Kafka.IntervalMs) * time.Millisecond,
			MaxRetries: cfg.Kafka.MaxRetries,
			Metrics:    m,
			Log:        logger,
		})
		if err != nil {
			return err
		}
		defer bc.Close()
	}

	// ---------------- Servers ----------------

	var httpSrv *httpapi.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = httpapi.NewServer(svc, m, runID, logger)
		if journalWAL != nil {
			httpSrv.WithJournal(journalWAL)
		}
	}
	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPCAddr != "" {
		grpcSrv = grpcserver.NewServer(svc, runID, logger)
	}

	// ---------------- Run ----------------

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	g, ctx := errgroup.WithContext(sigCtx)
	// stopCtx ends the servers and the broadcaster loop once the pipeline is
	// done and nothing is left to serve.
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	logger.Info().
		Str("source", cfg.Input.Source).
		Str("input", cfg.Input.Path).
		Str("output", cfg.Output.Path).
		Uint64("start_seq", startSeq).
		Bool("serve", cfg.Server.Serve).
		Msg("starting")

	g.Go(func() error {
		if grpcSrv != nil {
			grpcSrv.SetPipelineServing(true)
			defer grpcSrv.SetPipelineServing(false)
		}

		st, err := svc.Run(ctx, src)
		st.Log(logger)
		if last, ok := seq.Last(); ok {
			logger.Info().Uint64("first_seq", startSeq).Uint64("last_seq", last).Msg("sequence range")
		}
		if ks, ok := src.(*kafka.Source); ok && ks.Skipped() > 0 {
			logger.Warn().Uint64("skipped", ks.Skipped()).Msg("unparseable input messages dropped")
		}

		if csvOut != nil {
			if cerr := csvOut.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
			logger.Info().Str("path", cfg.Output.Path).Str("blake3", csvOut.Digest()).Msg("output written")
		}
		if journalWAL != nil {
			if serr := journalWAL.Sync(); serr != nil && err == nil {
				err = fmt.Errorf("sync journal: %w", serr)
			}
		}
		if err != nil && ctx.Err() != nil {
			// Interrupted: not a failure of the pipeline itself.
			logger.Warn().Err(err).Msg("processing interrupted")
			err = nil
		}
		if err != nil {
			return err
		}
		if !cfg.Server.Serve {
			stop()
		}
		return nil
	})

	if bc != nil {
		g.Go(func() error {
			if err := bc.Run(stopCtx); err != nil {
				return err
			}
			drainCtx, cancel := context.WithTimeout(sigCtx, drainTimeout)
			defer cancel()
			if err := bc.Drain(drainCtx); err != nil {
				logger.Warn().Err(err).Msg("outbox not fully drained")
			}
			return nil
		})
	}

	if httpSrv != nil {
		g.Go(func() error { return httpSrv.Serve(stopCtx, cfg.Server.HTTPAddr) })
	}
	if grpcSrv != nil {
		g.Go(func() error { return grpcSrv.Serve(stopCtx, cfg.Server.GRPCAddr) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("exited with error")
		return err
	}
	logger.Info().Msg("done")
	return nil
}

func openSource(cfg config.Config, m *metrics.Metrics) (feed.Source, io.Closer, error) {
	switch cfg.Input.Source {
	case "csv":
		if cfg.Input.Path == "-" {
			return feed.NewCSVReader(os.Stdin), nopCloser{}, nil
		}
		r, err := feed.OpenCSV(cfg.Input.Path)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "journal":
		r, err := entrywal.NewReader(cfg.Input.Path)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "kafka":
		s, err := kafka.NewSource(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.InputTopic,
			GroupID: cfg.Kafka.GroupID,
			Skipped: m.InputSkippedTotal,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Input.Source)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
