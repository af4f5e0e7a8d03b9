// Package notify fans receipt summaries out to participants' devices after a write has
// committed. Delivery is best effort: failures are logged and counted, never returned.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/metrics"
)

type DeviceDirectory interface {
	ResolveDeviceIDs(ctx context.Context, userIDs []string) ([]string, error)
}

type Notifier interface {
	Notify(ctx context.Context, deviceIDs []string, heading string, body string) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(_ context.Context, _ []string, _ string, _ string) error {
	return nil
}

type Dispatcher struct {
	devices  DeviceDirectory
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(devices DeviceDirectory, notifier Notifier, timeout time.Duration) *Dispatcher {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{devices: devices, notifier: notifier, timeout: timeout}
}

// Dispatch returns immediately. The send runs detached from the caller's request context.
func (d *Dispatcher) Dispatch(notice domain.ReceiptNotice) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.NotificationsSent.WithLabelValues("failed").Inc()
				log.Printf("[notify] WARN: receipt %s notification panicked: %v", notice.ReceiptID, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, notice)
	}()
}

// Wait blocks until every in-flight dispatch has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, notice domain.ReceiptNotice) {
	recipients := Recipients(notice)
	if len(recipients) == 0 || d.devices == nil {
		metrics.NotificationsSent.WithLabelValues("skipped").Inc()
		return
	}
	deviceIDs, err := d.devices.ResolveDeviceIDs(ctx, recipients)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		log.Printf("[notify] WARN: resolve devices for receipt %s: %v", notice.ReceiptID, err)
		return
	}
	if len(deviceIDs) == 0 {
		metrics.NotificationsSent.WithLabelValues("skipped").Inc()
		return
	}

	heading, body := BuildMessage(notice)
	if err := d.notifier.Notify(ctx, deviceIDs, heading, body); err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		log.Printf("[notify] WARN: send receipt %s notification to %d devices: %v", notice.ReceiptID, len(deviceIDs), err)
		return
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
}

// Recipients is the owner plus every participant with a linked user, deduplicated in
// first-seen order.
func Recipients(notice domain.ReceiptNotice) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(notice.Participants)+1)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(notice.OwnerUserID)
	for _, p := range notice.Participants {
		add(p.UserID)
	}
	return out
}

func BuildMessage(notice domain.ReceiptNotice) (string, string) {
	heading := fmt.Sprintf("New receipt: %s", notice.PaymentStatus)
	lines := make([]string, 0, len(notice.Participants))
	for _, p := range notice.Participants {
		lines = append(lines, fmt.Sprintf("%s - Sale: $%s - Tip: $%s",
			p.FirstName, p.ServiceAmount.StringFixed(2), p.TipAmount.StringFixed(2)))
	}
	return heading, strings.Join(lines, "\n")
}
