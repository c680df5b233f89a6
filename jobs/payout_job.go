package jobs

import (
	"context"
	"log"
	"time"

	"github.com/edusoko/course_market/database"
	"github.com/edusoko/course_market/payments"
	"github.com/edusoko/course_market/services"
)

var (
	scheduler *services.PayoutScheduler
	executor  *services.PayoutService
)

// InitPayoutJobs wires the scheduler and executor against the shared DB and
// gateway before cron registration.
func InitPayoutJobs(gateway payments.Gateway) {
	scheduler = services.NewPayoutScheduler(database.DB)
	executor = services.NewPayoutService(database.DB, gateway)
}

// Scheduler returns the shared scheduler for handler use (manual requests).
func Scheduler() *services.PayoutScheduler { return scheduler }

// Executor returns the shared payout executor (gateway payout webhooks).
func Executor() *services.PayoutService { return executor }

// SchedulePayouts is the hourly cron entry: batch eligible pending earnings
// into scheduled payouts.
func SchedulePayouts() {
	log.Println("Running job: SchedulePayouts...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	scheduler.RunOnce(ctx)
}

// ProcessPayouts submits due payouts (fresh and retry-due) to the gateway.
func ProcessPayouts() {
	log.Println("Running job: ProcessPayouts...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	executor.ProcessDuePayouts(ctx)
}
