package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/adapters/mainserver"
	"seoul-housing-ingest/internal/adapters/myhome"
	"seoul-housing-ingest/internal/adapters/redisstore"
	"seoul-housing-ingest/internal/adapters/repo"
	"seoul-housing-ingest/internal/adapters/shrss"
	"seoul-housing-ingest/internal/adapters/telegram"
	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/cache"
	"seoul-housing-ingest/internal/infra/config"
	"seoul-housing-ingest/internal/infra/db"
	apphttp "seoul-housing-ingest/internal/infra/http"
	applog "seoul-housing-ingest/internal/infra/log"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/infra/queue"
	"seoul-housing-ingest/internal/infra/retry"
	"seoul-housing-ingest/internal/usecase/collect"
	"seoul-housing-ingest/internal/usecase/detect"
	"seoul-housing-ingest/internal/usecase/feeddiff"
	"seoul-housing-ingest/internal/usecase/ingest"
	"seoul-housing-ingest/internal/usecase/stdid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := applog.NewLogger("prod")
		fallback.Fatal().Err(err).Msg("ingest: invalid configuration")
	}
	logger := applog.NewLogger(cfg.AppEnv)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := run(ctx, cfg, logger)
	metrics.ObserveRun(start, runErr)

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, cfg.Scope, registry); err != nil {
			logger.Warn().Err(err).Msg("ingest: metrics push failed")
		}
		cancel()
	}

	if runErr != nil {
		logger.Error().Err(runErr).Dur("took", time.Since(start)).Msg("ingest: finished with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Dur("took", time.Since(start)).Msg("ingest: finished")
}

func run(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	fileTargets, err := config.LoadTargets(cfg.MyHome.TargetsFile)
	if err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	keys, err := redisstore.NewKeys(cfg.AppEnv)
	if err != nil {
		return err
	}
	lockKey, err := keys.Lock(cfg.Scope)
	if err != nil {
		return err
	}

	policy := retry.Policy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		MaxDelay: cfg.Retry.MaxDelay,
		Logger:   applog.Component(logger, "retry"),
	}

	listing, err := myhome.New(cfg.MyHome.BaseURL, cfg.MyHome.ServiceKey, applog.Component(logger, "myhome"),
		myhome.WithHTTPClient(apphttp.NewClient(cfg.MyHome.ConnectTimeout, cfg.MyHome.ReadTimeout)),
		myhome.WithRetry(policy),
	)
	if err != nil {
		return err
	}
	feedFetcher, err := shrss.NewFetcher(cfg.SH.NoticeURL,
		apphttp.NewClient(cfg.SH.ConnectTimeout, cfg.SH.ReadTimeout), policy, applog.Component(logger, "sh_rss"))
	if err != nil {
		return err
	}

	deliverer, closeDeliverer, err := newDeliverer(cfg, policy, rdb, logger)
	if err != nil {
		return err
	}
	defer closeDeliverer()

	deps := ingest.Deps{
		Lock:        cache.NewRunLock(rdb, lockKey),
		Collector:   collect.NewCollector(listing, cfg.MyHome.MaxPages, applog.Component(logger, "collect")),
		Region:      collect.NewRegionFilter(cfg.MyHome.RegionPrefixes),
		IDs:         stdid.New(),
		Detector:    detect.New(redisstore.NewSeenReader(rdb, keys)),
		FeedFetcher: feedFetcher,
		FeedParser:  shrss.NewParser(),
		FeedDiff:    feeddiff.New(cfg.SH.Keyword, applog.Component(logger, "feeddiff")),
		Cursor:      redisstore.NewCursorStore(rdb, keys),
		Snapshots:   redisstore.NewSnapshotStore(rdb, keys, cfg.Snapshot.TTL, cfg.Snapshot.GzipThresholdBytes),
		Deliverer:   deliverer,
		Logger:      applog.Component(logger, "ingest"),
	}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		journal := repo.NewJournal(pool)
		if err := journal.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Journal = journal
	}

	if cfg.Telegram.Token != "" {
		alerter, err := telegram.NewAlerter(cfg.Telegram.Token, cfg.Telegram.AlertChatID,
			fmt.Sprintf("[%s/%s]", cfg.AppEnv, cfg.Scope), applog.Component(logger, "telegram"))
		if err != nil {
			logger.Warn().Err(err).Msg("ingest: alerts disabled")
		} else {
			deps.Alerter = alerter
		}
	}

	job := ingest.NewJob(ingest.Config{
		Scope:      cfg.Scope,
		Listings:   listingTargets(cfg, fileTargets),
		Feed:       ingest.FeedTarget{Category: cfg.SH.Category, SeedLimit: cfg.SH.SeedLimit, ReseedOnStale: cfg.SH.ReseedOnStale},
		RunLockTTL: cfg.RunLockTTL,
	}, deps)
	return job.RunOnce(ctx)
}

func newDeliverer(cfg config.AppConfig, policy retry.Policy, rdb *redis.Client, logger zerolog.Logger) (domain.Deliverer, func(), error) {
	noop := func() {}
	switch cfg.Delivery.Mode {
	case config.DeliveryAMQP:
		d, err := queue.DialRabbit(cfg.Delivery.RabbitURL, cfg.Delivery.RabbitExchange, cfg.Delivery.RabbitRoutingKey, applog.Component(logger, "rabbitmq"))
		if err != nil {
			return nil, noop, err
		}
		return d, func() {
			if err := d.Close(); err != nil {
				logger.Warn().Err(err).Msg("ingest: rabbitmq close failed")
			}
		}, nil
	case config.DeliveryRedis:
		return queue.NewRedisDeliverer(rdb, cfg.Delivery.RedisKey), noop, nil
	default:
		d, err := mainserver.New(cfg.MainServer.BaseURL, cfg.MainServer.IngestPath, applog.Component(logger, "main_server"),
			mainserver.WithTimeout(cfg.MainServer.Timeout),
			mainserver.WithRetry(policy),
		)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil
	}
}

func listingTargets(cfg config.AppConfig, fromFile []config.ListingTarget) []ingest.ListingTarget {
	base := domain.ListingQuery{
		NumOfRows:  cfg.MyHome.NumOfRows,
		BrtcCode:   cfg.MyHome.BrtcCode,
		SignguCode: cfg.MyHome.SignguCode,
		HouseTy:    cfg.MyHome.HouseTy,
		YearMtFrom: cfg.MyHome.YearMtBegin,
		YearMtTo:   cfg.MyHome.YearMtEnd,
	}
	rental := base
	rental.Kind = domain.ListingRental
	rental.SuplyTy = cfg.MyHome.SuplyTy
	rental.LfstsTyAt = cfg.MyHome.LfstsTyAt
	rental.BassMtRntchrgSe = cfg.MyHome.BassMtRntchrgSe

	sale := base
	sale.Kind = domain.ListingSale

	if len(fromFile) == 0 {
		return []ingest.ListingTarget{
			{Category: cfg.MyHome.CategoryRsdt, Query: rental},
			{Category: cfg.MyHome.CategoryLtRsdt, Query: sale},
		}
	}

	out := make([]ingest.ListingTarget, 0, len(fromFile))
	for _, t := range fromFile {
		q := sale
		if t.Kind == config.KindRental {
			q = rental
			q.SuplyTy = cmp.Or(t.SuplyTy, q.SuplyTy)
			q.LfstsTyAt = cmp.Or(t.LfstsTyAt, q.LfstsTyAt)
			q.BassMtRntchrgSe = cmp.Or(t.BassMtRntchrgSe, q.BassMtRntchrgSe)
		}
		q.SignguCode = cmp.Or(t.SignguCode, q.SignguCode)
		q.HouseTy = cmp.Or(t.HouseTy, q.HouseTy)
		q.YearMtFrom = cmp.Or(t.YearMtBegin, q.YearMtFrom)
		q.YearMtTo = cmp.Or(t.YearMtEnd, q.YearMtTo)
		out = append(out, ingest.ListingTarget{Category: t.Category, Query: q})
	}
	return out
}
