package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	jwttoken "haven/internal/jwt_token"
	"haven/internal/platform/config"
	"haven/internal/platform/kafka"
	"haven/internal/platform/metrics"
	"haven/internal/platform/postgres"
	"haven/internal/platform/redis"
	"haven/internal/sharing/anonymize"
	vspstore "haven/internal/sharing/anonymize/store"
	"haven/internal/sharing/export"
	exportstore "haven/internal/sharing/export/store"
	"haven/internal/sharing/handler"
	"haven/internal/sharing/hashing"
	"haven/internal/sharing/imports"
	importstore "haven/internal/sharing/imports/store"
	"haven/internal/sharing/ledger"
	"haven/internal/sharing/ledger/sink"
	ledgerstore "haven/internal/sharing/ledger/store"
	"haven/internal/sharing/models"
	"haven/internal/sharing/packet"
	packetstore "haven/internal/sharing/packet/store"
	"haven/internal/sharing/records"
	recordstore "haven/internal/sharing/records/store"
	"haven/internal/sharing/sealing"
	"haven/internal/sharing/sealing/keys"
	httptransport "haven/internal/transport/http"
	"haven/pkg/platform/audit/publishers/compliance"
	auditpg "haven/pkg/platform/audit/store/postgres"
	"haven/pkg/platform/audit/worker"
	"haven/pkg/platform/circuit"
	"haven/pkg/platform/tx"
)

// devKeyID names the throwaway sealing key generated in development when no
// keyring or KMS is configured.
const devKeyID = "dev-local"

type application struct {
	router      http.Handler
	vsp         *anonymize.Engine
	auditWorker *worker.Worker
	logger      *slog.Logger
	closers     []func()
}

// Close releases connections in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// sweepExpired expires lapsed recipient exports and purges old ones until
// ctx is cancelled.
func (a *application) sweepExpired(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := a.vsp.ProcessExpired(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "vsp export sweep failed", "error", err,
					"expired", res.Expired, "purged", res.Purged)
				continue
			}
			if res.Expired > 0 || res.Purged > 0 {
				a.logger.InfoContext(ctx, "vsp export sweep", "expired", res.Expired, "purged", res.Purged)
			}
		}
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *application, err error) {
	app := &application{logger: log}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	txRunner := tx.NewRunner(db, cfg.Postgres.TxTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	keyManager, err := newKeyManager(cfg, log)
	if err != nil {
		return nil, err
	}
	cipher := sealing.NewCipher(keyManager)

	packets, err := newPacketStore(cfg, db, log, app)
	if err != nil {
		return nil, err
	}
	registry := packet.NewRegistry(packets, hashing.New(hashing.WithSaltSource(keyManager)),
		packet.WithLogger(log),
		packet.WithMetrics(packet.NewMetrics(reg)),
		packet.WithDefaultHashAlgorithm(models.HashAlgorithm(cfg.Crypto.HashAlgorithm)),
	)

	auditStore := auditpg.New(db)
	auditPublisher := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	kc, err := kafka.New(cfg.Kafka, log)
	if err != nil {
		return nil, err
	}
	var ledgerSink ledger.Sink = sink.NewLog(log)
	if kc != nil {
		app.closers = append(app.closers, kc.Close)
		if cfg.Kafka.CreateTopics {
			if err := kc.EnsureTopics(ctx); err != nil {
				return nil, err
			}
		}
		breaker := circuit.New("ledger-kafka", circuit.WithStateChange(func(name string, from, to circuit.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		}))
		ledgerSink = sink.NewKafka(kc, kc.LedgerTopic(), breaker)
		app.auditWorker = worker.NewWorker(auditStore, kc, worker.WithLogger(log))
	} else {
		log.Info("kafka not configured; ledger facts are logged and audit outbox is not relayed")
	}
	ledgerPublisher := ledger.New(ledgerstore.NewPostgres(db), ledgerSink,
		ledger.WithLogger(log),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
	)

	reference := recordstore.NewPostgresReference(db)
	recordStore := recordstore.NewPostgres(db)
	recordService := records.New(reference, reference, registry, recordStore,
		records.WithLogger(log),
		records.WithAuditPublisher(auditPublisher),
		records.WithTxRunner(txRunner),
	)

	exportService, err := export.New(recordStore, cipher, exportstore.NewPostgres(db),
		export.WithLogger(log),
		export.WithMetrics(export.NewMetrics(reg)),
		export.WithAuditPublisher(auditPublisher),
		export.WithLedgerPublisher(ledgerPublisher),
		export.WithTxRunner(txRunner),
	)
	if err != nil {
		return nil, err
	}
	importService, err := imports.New(recordService, reference, importstore.NewPostgres(db),
		imports.WithLogger(log),
		imports.WithMetrics(imports.NewMetrics(reg)),
		imports.WithLedgerPublisher(ledgerPublisher),
		imports.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return nil, err
	}
	app.vsp, err = anonymize.New(exportService, cipher, vspstore.NewPostgres(db),
		anonymize.WithLogger(log),
		anonymize.WithMetrics(anonymize.NewMetrics(reg)),
		anonymize.WithAuditPublisher(auditPublisher),
		anonymize.WithLedgerPublisher(ledgerPublisher),
		anonymize.WithTxRunner(txRunner),
	)
	if err != nil {
		return nil, err
	}

	defaultFormat, err := models.ParseFormat(cfg.Export.DefaultFormat)
	if err != nil {
		return nil, err
	}
	sharing := handler.New(exportService, importService, app.vsp, log,
		handler.WithDefaultFormat(defaultFormat),
		handler.WithImportSourceSystem(cfg.Export.ImportSourceSys),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	app.router = httptransport.NewRouter(httptransport.RouterConfig{
		Logger:             log,
		Metrics:            metrics.New(reg),
		Gatherer:           reg,
		Validator:          jwttoken.NewMiddlewareValidator(jwtService),
		Sharing:            sharing,
		RequestTimeout:     cfg.Server.RequestTimeout,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		Ready:              db,
	})
	return app, nil
}

// newKeyManager serves both the cipher and the identity hasher's salts.
func newKeyManager(cfg *config.Config, log *slog.Logger) (sealing.KeyManager, error) {
	if cfg.Crypto.KMSURL != "" {
		return keys.NewRemoteKeyManager(keys.RemoteConfig{
			BaseURL: cfg.Crypto.KMSURL,
			Token:   cfg.Crypto.KMSToken,
			Timeout: cfg.Crypto.KMSTimeout,
		}), nil
	}
	ring, err := keys.ParseKeyring(cfg.Crypto.Keyring)
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	if cfg.Crypto.Keyring == "" {
		if !cfg.IsDev() {
			return nil, errors.New("no sealing keys configured")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate dev key: %w", err)
		}
		if err := ring.Put(devKeyID, key); err != nil {
			return nil, err
		}
		log.Warn("using an ephemeral development sealing key", "key_id", devKeyID)
	}
	return ring, nil
}

// newPacketStore fronts Postgres with the Redis read-through cache when
// Redis is configured.
func newPacketStore(cfg *config.Config, db *sql.DB, log *slog.Logger, app *application) (packet.Store, error) {
	pg := packetstore.NewPostgres(db)
	rc, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return pg, nil
	}
	app.closers = append(app.closers, func() { _ = rc.Close() })
	return packetstore.NewRedisCache(pg, rc.Client, cfg.Redis.PacketTTL, log), nil
}
