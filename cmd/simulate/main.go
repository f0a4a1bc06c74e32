package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/infrastructure/ratefeed"
	applog "washdesk/internal/logger"
	"washdesk/internal/rate"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
	"washdesk/internal/service"
)

// Drives orders through the lifecycle against the in-memory store and
// fires duplicate payment submissions at each one, the way a retrying
// front desk would.
func main() {
	ctx := context.Background()
	logger, err := applog.New("warn")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store := repo.NewMemoryStore()
	feed := ratefeed.NewSimulatedFeed(domain.CurrencyCanonical, domain.CurrencyLocal, 240, 0)
	rates := rate.NewProvider(feed, nil, rate.Options{Pair: "USD/VES"}, logger)
	if err := rates.Warm(ctx); err != nil {
		log.Fatal(err)
	}

	hub := realtime.NewHub(256, logger)
	events := hub.Subscribe(realtime.All)
	var counted sync.WaitGroup
	published := 0
	counted.Add(1)
	go func() {
		defer counted.Done()
		for range events.C() {
			published++
		}
	}()

	locks := service.NewKeyedLocks()
	opts := service.Options{Tolerance: decimal.NewNullDecimal(decimal.New(1, -2))}
	deliveries := service.NewDeliveryService(store, locks, hub, opts, logger)
	orders := service.NewOrderService(store, locks, deliveries, hub, opts, logger)
	payments := service.NewReconciliationService(store, locks, rates, deliveries, hub, opts, logger)

	snap, _ := rates.Current(ctx)
	fmt.Printf("--- STARTING SIMULATION (rate %s %s) ---\n", snap.Pair(), snap.Average)

	for i := 0; i < 10; i++ {
		price := decimal.NewFromInt(int64(15 + i))
		order, err := orders.Intake(ctx, service.IntakeRequest{
			ClientID:     fmt.Sprintf("client-%d", i%3),
			VehiclePlate: fmt.Sprintf("SIM%03d", i),
			Items:        []domain.LineItem{{ServiceName: "full wash", UnitPrice: price, Commission: decimal.NewFromInt(2)}},
		})
		if err != nil {
			log.Printf("intake failed: %v", err)
			continue
		}
		for _, s := range []domain.OrderStatus{domain.OrderInProgress, domain.OrderQualityCheck, domain.OrderWaitingPayment} {
			if _, err := orders.Transition(ctx, order.ID, s, ""); err != nil {
				log.Printf("transition failed: %v", err)
			}
		}

		// Half in cash dollars, half in local transfer, sent five times at once.
		half := price.Div(decimal.NewFromInt(2))
		local := domain.RoundMoney(domain.ToLocal(half, snap.Average))
		req := service.SubmitRequest{
			Entries: []service.PaymentInput{
				{Amount: half, Currency: domain.CurrencyCanonical, Method: domain.MethodCash},
				{Amount: local, Currency: domain.CurrencyLocal, Method: domain.MethodTransfer, Reference: uuid.NewString()[:8]},
			},
			IdempotencyKey: uuid.New(),
			IssuedBy:       "simulator",
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		outcomes := map[string]int{}
		for n := 0; n < 5; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := payments.Submit(ctx, order.ID, req)
				key := ""
				switch {
				case errors.Is(err, domain.ErrReconciliationInProgress):
					key = "in-progress"
				case err != nil:
					key = "error: " + err.Error()
				case res.Replayed:
					key = "replayed"
				default:
					key = string(res.Outcome)
				}
				mu.Lock()
				outcomes[key]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		sum, err := payments.Summary(ctx, order.ID)
		if err != nil {
			log.Printf("summary failed: %v", err)
			continue
		}
		fmt.Printf("[%02d] order %d total %s paid %s remaining %s entries %d status %s %v\n",
			i+1, order.ID, sum.Total, sum.TotalPaid, sum.Remaining, len(sum.Entries), sum.Status, outcomes)
	}

	events.Close()
	counted.Wait()
	fmt.Printf("--- DONE: %d events published, %d dropped ---\n", published, events.Dropped())
	logger.Info("simulation finished", zap.Int("events", published))
}
