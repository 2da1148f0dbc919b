package main

import (
	"context"
	"flag"
	"log"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/config"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	pg "github.com/biluextraterrestre/telegram-payment-bot/internal/infra/db/postgres"
)

// Seeds the product catalog referenced by the bot's purchase flow.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	productRepo := pg.NewProductRepo(pool)

	trialDays := 7
	monthDays := 30

	trial, err := model.NewProduct(cfg.Products.TrialID, "Trial 7 dias", 990, &trialDays)
	if err != nil {
		log.Fatalf("trial product: %v", err)
	}
	monthly, err := model.NewProduct(cfg.Products.MonthlyID, "Mensal", 4990, &monthDays)
	if err != nil {
		log.Fatalf("monthly product: %v", err)
	}
	lifetime, err := model.NewProduct(cfg.Products.LifetimeID, "Vitalício", 29990, nil)
	if err != nil {
		log.Fatalf("lifetime product: %v", err)
	}

	for _, p := range []*model.Product{trial, monthly, lifetime} {
		if err := productRepo.Save(ctx, nil, p); err != nil {
			log.Fatalf("save product %s: %v", p.ID, err)
		}
		log.Printf("seeded product %s (%s)", p.ID, p.Name)
	}

	log.Println("seed complete")
}
