package booking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cinema-checkout-cli/model"
)

const defaultPollInterval = 3 * time.Second

// PaymentHandlers are invoked from the poll goroutine. Each poll calls at most one
// of them, at most once.
type PaymentHandlers struct {
	OnPaid   func(attempt model.PaymentAttempt)
	OnFailed func(attempt model.PaymentAttempt)
}

// Payments creates payment attempts over the cash and QR channels.
type Payments struct {
	api      PaymentAPI
	interval time.Duration
	logger   *zap.Logger
}

func NewPayments(api PaymentAPI, interval time.Duration, logger *zap.Logger) *Payments {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Payments{api: api, interval: interval, logger: logger.Named("payment")}
}

// PayCash settles the booking at the counter in one call. A declined or failed
// payment leaves the booking payable.
func (p *Payments) PayCash(ctx context.Context, bookingID string) (model.PaymentAttempt, error) {
	attempt := model.PaymentAttempt{BookingId: bookingID, Channel: model.ChannelCash, Status: model.PaymentPending}

	result, err := p.api.PayCash(ctx, bookingID)
	if err != nil {
		attempt.Status = model.PaymentFailed
		return attempt, classify("cash payment", err)
	}
	attempt.OrderCode = result.OrderCode
	if !result.Success {
		attempt.Status = model.PaymentFailed
		return attempt, &RejectedError{Op: "cash payment", Message: result.Message}
	}
	attempt.Status = model.PaymentPaid
	p.logger.Info("cash payment settled", zap.String("booking_id", bookingID), zap.String("order_code", attempt.OrderCode))
	return attempt, nil
}

// StartQR requests a payment link and starts polling its status.
func (p *Payments) StartQR(ctx context.Context, bookingID string, handlers PaymentHandlers) (*Poll, error) {
	link, err := p.api.CreatePaymentLink(ctx, bookingID)
	if err != nil {
		return nil, classifyGateway("create payment link", err)
	}
	attempt := model.PaymentAttempt{
		BookingId:   bookingID,
		Channel:     model.ChannelQR,
		OrderCode:   link.OrderCode,
		QRPayload:   link.QRPayload,
		CheckoutURL: link.CheckoutURL,
		Status:      model.PaymentPending,
	}
	poll := newPoll(p.api, attempt, p.interval, handlers, p.logger)
	go poll.run()
	p.logger.Info("qr payment started", zap.String("booking_id", bookingID), zap.String("order_code", attempt.OrderCode))
	return poll, nil
}

type pollState int

const (
	pollRunning pollState = iota
	pollFinished
	pollCancelled
)

// Poll repeatedly checks one QR attempt. Checks are strictly sequential: the next
// one is scheduled only after the previous one returned.
type Poll struct {
	api      PaymentAPI
	interval time.Duration
	handlers PaymentHandlers
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   pollState
	attempt model.PaymentAttempt
}

func newPoll(api PaymentAPI, attempt model.PaymentAttempt, interval time.Duration, handlers PaymentHandlers, logger *zap.Logger) *Poll {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poll{
		api:      api,
		interval: interval,
		handlers: handlers,
		logger:   logger.With(zap.String("order_code", attempt.OrderCode)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		attempt:  attempt,
	}
}

func (p *Poll) Attempt() model.PaymentAttempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// Active reports whether the poll is still waiting for a terminal status.
func (p *Poll) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pollRunning
}

// Cancel stops polling without invoking any handler. It returns immediately; a
// check already in flight is discarded when it completes.
func (p *Poll) Cancel() {
	p.mu.Lock()
	if p.state == pollRunning {
		p.state = pollCancelled
		p.attempt.Status = model.PaymentCancelled
	}
	p.mu.Unlock()
	p.cancel()
}

func (p *Poll) Done() <-chan struct{} { return p.done }

func (p *Poll) Wait() { <-p.done }

func (p *Poll) run() {
	defer close(p.done)
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		status, err := p.api.GetPaymentStatus(p.ctx, p.attempt.OrderCode)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Debug("payment status check failed, retrying", zap.Error(err))
			timer.Reset(p.interval)
			continue
		}
		if status.Terminal() {
			p.finish(status)
			return
		}
		timer.Reset(p.interval)
	}
}

func (p *Poll) finish(status model.PaymentStatus) {
	p.mu.Lock()
	if p.state != pollRunning {
		p.mu.Unlock()
		p.logger.Debug("discarding late payment status", zap.String("status", string(status)))
		return
	}
	p.state = pollFinished
	p.attempt.Status = status
	attempt := p.attempt
	p.mu.Unlock()
	p.cancel()

	if status == model.PaymentPaid {
		p.logger.Info("qr payment confirmed")
		if p.handlers.OnPaid != nil {
			p.handlers.OnPaid(attempt)
		}
		return
	}
	p.logger.Info("qr payment ended without success", zap.String("status", string(status)))
	if p.handlers.OnFailed != nil {
		p.handlers.OnFailed(attempt)
	}
}
