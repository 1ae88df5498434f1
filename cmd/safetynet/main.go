// cmd/safetynet/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/api"
	"github.com/sua-org/safetynet/internal/bridge"
	"github.com/sua-org/safetynet/internal/classifier"
	"github.com/sua-org/safetynet/internal/config"
	"github.com/sua-org/safetynet/internal/drivers"
	"github.com/sua-org/safetynet/internal/history"
	"github.com/sua-org/safetynet/internal/mediamtx"
	"github.com/sua-org/safetynet/internal/metrics"
	"github.com/sua-org/safetynet/internal/mqttclient"
	"github.com/sua-org/safetynet/internal/registry"
	"github.com/sua-org/safetynet/internal/storage"
	"github.com/sua-org/safetynet/internal/supervisor"
)

var configPath = flag.String("config", "safetynet.yaml", "YAML config file (optional)")

func main() {
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config inválida")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	skipped, err := reg.Load(cfg.Registry.File)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Registry.File).Msg("erro ao carregar câmeras")
	}
	for _, e := range skipped {
		log.Warn().Err(e).Msg("câmera ignorada no arquivo de registro")
	}

	tlsCfg, err := drivers.TLSConfig(cfg.TLS.InsecureSkipVerify, cfg.TLS.CAFile)
	if err != nil {
		log.Fatal().Err(err).Msg("erro na config TLS")
	}
	if cfg.TLS.InsecureSkipVerify {
		log.Warn().Msg("verificação de certificado desativada (câmeras com certificado self-signed)")
	}

	opts := drivers.Options{Secure: cfg.WS.Secure, Path: cfg.WS.Path, TLS: tlsCfg}
	dialer, err := drivers.GetDriver("websocket", opts)
	if err != nil {
		log.Fatal().Err(err).Msg("driver websocket")
	}
	httpClient := drivers.NewHTTPClient(opts, cfg.History.Timeout)

	cls := classifier.New()
	fetcher := history.NewFetcher(httpClient, cls, history.Config{
		Secure:         cfg.History.Secure,
		Port:           cfg.History.Port,
		DetectionsPath: cfg.History.DetectionsPath,
		TrespassPath:   cfg.History.TrespassPath,
		Timeout:        cfg.History.Timeout,
		Parallel:       cfg.History.Parallel,
	})
	m := metrics.New()

	deps := supervisor.Deps{
		Dialer:       dialer,
		History:      fetcher,
		Registry:     reg,
		RegistryFile: cfg.Registry.File,
		Classifier:   cls,
		Metrics:      m,
		ProbeTimeout: cfg.Probe.Timeout,
		DedupSize:    cfg.Dedup.Size,
		DedupTTL:     cfg.Dedup.TTL,
	}

	// MinIO é opcional; sem ele os logs guardam só a URL da câmera
	if cfg.MinIO.Enabled {
		store, err := storage.NewMinioStore(ctx, cfg.MinIO)
		if err != nil {
			log.Warn().Err(err).Msg("MinIO não inicializado, snapshots não serão arquivados")
		} else {
			deps.Archiver = storage.NewArchiver(store, httpClient, cfg.History.Timeout)
		}
	}
	if gen := mediamtx.NewGenerator(cfg.MediaMTX); gen != nil {
		deps.MediaMTX = gen
	}

	sup := supervisor.New(deps)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("supervisor terminou com erro")
		}
	}()

	if cfg.MQTT.Enabled {
		mqttCli, err := mqttclient.NewClient(cfg.MQTT.Config)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT indisponível, seguindo sem bridge")
		} else {
			defer mqttCli.Close()
			br := bridge.New(mqttCli, sup, cfg.MQTT.BaseTopic, cfg.Status.Interval)
			go func() {
				if err := br.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("bridge MQTT terminou com erro")
				}
			}()
		}
	}

	go reconcileLoop(ctx, sup, cfg.Reconcile.Interval)

	e := api.NewServer(sup, m.Handler())
	api.ServerTimeouts(e)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("API HTTP iniciada")
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("servidor HTTP")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("sinal recebido, encerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown HTTP")
	}
	select {
	case <-supDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("supervisor não terminou a tempo")
	}
}

// reconcileLoop reabre sessões que caíram ou falharam.
func reconcileLoop(ctx context.Context, sup *supervisor.Supervisor, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sup.Reconcile(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("reconcile periódico")
			}
		}
	}
}
