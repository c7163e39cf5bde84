package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/db"
	"github.com/hackgods/counsel-coordinator/internal/logs"
)

// dayTimes are the session starts every seeded provider publishes, spaced
// so that alternate slots satisfy the interval buffer.
var dayTimes = []string{"08:00", "08:40", "09:20", "10:00", "10:40", "11:20", "13:00", "13:40", "14:20", "15:00", "15:40"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	logger := logs.New(cfg, "seed")
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Error("migrate", "err", err)
		os.Exit(1)
	}

	repo := appointment.NewPgRepository(pool)
	svc := appointment.NewService(appointment.Deps{
		Store:     repo,
		Directory: repo,
		Logger:    logger,
	}, cfg)

	gofakeit.Seed(time.Now().UnixNano())

	providers := getInt("SEED_PROVIDERS", 12)
	requesters := getInt("SEED_REQUESTERS", 2000)
	days := getInt("SEED_DAYS", 14)

	ids, err := seedProviders(context.Background(), logger, repo, providers)
	if err != nil {
		logger.Error("seed providers", "err", err)
		os.Exit(1)
	}
	if err := seedRequesters(context.Background(), logger, repo, requesters); err != nil {
		logger.Error("seed requesters", "err", err)
		os.Exit(1)
	}
	if err := seedAvailability(context.Background(), logger, svc, ids, days); err != nil {
		logger.Error("seed availability", "err", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedProviders(ctx context.Context, logger *slog.Logger, repo *appointment.PgRepository, count int) ([]uuid.UUID, error) {
	logger.Info("seeding providers", "count", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		p := &appointment.Provider{
			ID:   uuid.New(),
			Name: fmt.Sprintf("%s %s", gofakeit.NamePrefix(), gofakeit.LastName()),
		}
		if err := repo.CreateProvider(ctx, p); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}

	logger.Info("providers seeded")
	return ids, nil
}

func seedRequesters(ctx context.Context, logger *slog.Logger, repo *appointment.PgRepository, count int) error {
	logger.Info("seeding requesters", "count", count)

	for i := 0; i < count; i++ {
		r := &appointment.Requester{
			ID:      uuid.New(),
			Name:    gofakeit.Name(),
			Section: fmt.Sprintf("%d-%c", gofakeit.Number(7, 12), 'A'+rune(gofakeit.Number(0, 5))),
			Contact: gofakeit.Email(),
		}
		if err := repo.CreateRequester(ctx, r); err != nil {
			return err
		}
		if (i+1)%500 == 0 {
			logger.Info("requesters seeded", "done", i+1, "total", count)
		}
	}

	logger.Info("requesters seeded")
	return nil
}

// seedAvailability publishes dayTimes for every provider on each weekday of
// the next days days.
func seedAvailability(ctx context.Context, logger *slog.Logger, svc *appointment.Service, providers []uuid.UUID, days int) error {
	today := time.Now().In(svc.Location())

	published := 0
	for d := 1; d <= days; d++ {
		date := today.AddDate(0, 0, d)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, id := range providers {
			if _, err := svc.PublishAvailability(ctx, id, date.Format(appointment.DateLayout), dayTimes); err != nil {
				return err
			}
			published++
		}
	}

	logger.Info("availability published", "ledger_days", published)
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
