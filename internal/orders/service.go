package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/logging"
	"github.com/socialpulse/socialpulse/internal/metrics"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/notification"
	"github.com/socialpulse/socialpulse/internal/provider"
)

// DefaultCancelMinAge is how long a placed order must exist before the user may
// cancel it.
const DefaultCancelMinAge = 5 * time.Minute

const reasonInsufficientFunds = "insufficient funds"

// Options tunes a Service. Zero values pick sensible defaults.
type Options struct {
	CancelMinAge time.Duration
	Notifier     notification.Notifier
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Service drives orders through their lifecycle. Every transition runs inside a
// single ledger update on the order's wallet, so the order row and the wallet
// change commit together. Provider calls never happen while the wallet is locked.
type Service struct {
	repo         Repository
	ledger       *ledger.Ledger
	gateways     *provider.Registry
	notifier     notification.Notifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
	cancelMinAge time.Duration
	now          func() time.Time
}

func NewService(repo Repository, led *ledger.Ledger, gateways *provider.Registry, opts Options) *Service {
	s := &Service{
		repo:         repo,
		ledger:       led,
		gateways:     gateways,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		cancelMinAge: opts.CancelMinAge,
		now:          opts.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.notifier == nil {
		s.notifier = notification.NewLoggerNotifier(s.logger)
	}
	if s.cancelMinAge <= 0 {
		s.cancelMinAge = DefaultCancelMinAge
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// PlaceInput describes a priced order. Amount is in the wallet currency.
type PlaceInput struct {
	UserID   string
	Kind     Kind
	Mode     ChargeMode
	Amount   decimal.Decimal
	Selector provider.Selector
	Target   string
	Details  Details
}

// Place records the order, holds funds when required and submits it to the
// provider. On insufficient funds the order is stored as failed and
// ledger.ErrInsufficientFunds is returned with it.
func (s *Service) Place(ctx context.Context, in PlaceInput) (Order, error) {
	if !in.Kind.Valid() {
		return Order{}, fmt.Errorf("unknown order kind %q", in.Kind)
	}
	amount := money.RoundFiat(in.Amount)
	if !amount.IsPositive() {
		return Order{}, ledger.ErrInvalidAmount
	}
	if in.Mode == "" {
		in.Mode = ModeReserve
	}

	w, err := s.ledger.GetByOwner(ctx, in.UserID)
	if err != nil {
		return Order{}, err
	}

	now := s.now().UTC()
	id := uuid.NewString()
	details := in.Details
	details.Selector = in.Selector.With(provider.KeyOrderID, id)
	details.Target = in.Target
	o := Order{
		ID:            id,
		UserID:        in.UserID,
		WalletID:      w.ID,
		Kind:          in.Kind,
		Status:        StatusPending,
		ChargeMode:    in.Mode,
		AmountCharged: decimal.NewNullDecimal(amount),
		Currency:      w.Currency,
		Held:          decimal.Zero,
		Debited:       decimal.Zero,
		Details:       details,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	insufficient := false
	_, err = s.ledger.Update(ctx, w.ID, func(txCtx context.Context, w *ledger.Wallet) error {
		var holdErr error
		switch o.ChargeMode {
		case ModeReserve:
			if holdErr = w.Reserve(amount, o.ID); holdErr == nil {
				o.Held = amount
			}
		case ModeDebit:
			if w.Spendable().LessThan(amount) {
				holdErr = ledger.ErrInsufficientFunds
			}
		}
		if errors.Is(holdErr, ledger.ErrInsufficientFunds) {
			insufficient = true
			o.Status = StatusFailed
			o.ErrorMessage = reasonInsufficientFunds
		} else if holdErr != nil {
			return holdErr
		}
		return s.repo.Create(txCtx, o)
	})
	if err != nil {
		return Order{}, err
	}
	if insufficient {
		s.observe(ctx, o, StatusPending)
		return o, ledger.ErrInsufficientFunds
	}

	logging.FromContext(ctx, s.logger).Info("order created",
		slog.String("order_id", o.ID),
		slog.String("kind", string(o.Kind)),
		slog.String("amount", amount.String()),
		slog.String("currency", o.Currency),
	)
	return s.submit(ctx, o)
}

// Resubmit retries placement of a pending order the provider never acknowledged.
func (s *Service) Resubmit(ctx context.Context, userID, orderID string) (Order, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPending || o.ProviderReference != "" {
		return o, ErrNotRetryable
	}
	return s.submit(ctx, o)
}

func (s *Service) submit(ctx context.Context, o Order) (Order, error) {
	g, err := s.gateways.Get(string(o.Kind))
	if err != nil {
		return o, err
	}

	h, err := g.PlaceOrder(ctx, o.Details.Selector, o.Details.Target)
	var rejected *provider.RejectedError
	switch {
	case errors.As(err, &rejected):
		failed, _, ferr := s.Advance(ctx, o.ID, func(cur Order) (Change, error) {
			if cur.Status != StatusPending {
				return Change{}, ErrNoChange
			}
			return Change{To: StatusFailed, Reason: rejected.Reason}, nil
		})
		if ferr != nil {
			return o, ferr
		}
		return failed, err
	case err != nil:
		if !errors.Is(err, provider.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
		}
		logging.FromContext(ctx, s.logger).Warn("provider unavailable, order left pending",
			slog.String("order_id", o.ID),
			slog.String("kind", string(o.Kind)),
			slog.String("error", err.Error()),
		)
		return o, err
	}

	accepted, changed, err := s.Advance(ctx, o.ID, func(cur Order) (Change, error) {
		if cur.Status != StatusPending {
			return Change{}, ErrNoChange
		}
		return Change{
			To:        StatusProcessing,
			Reference: h.ExternalID,
			Update:    func(o *Order) { applyHandle(o, h) },
		}, nil
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		s.cancelQuietly(ctx, g, o, h.ExternalID)
		failed, _, ferr := s.Advance(ctx, o.ID, func(cur Order) (Change, error) {
			if cur.Status != StatusPending {
				return Change{}, ErrNoChange
			}
			return Change{To: StatusFailed, Reason: reasonInsufficientFunds}, nil
		})
		if ferr != nil {
			return o, ferr
		}
		return failed, ledger.ErrInsufficientFunds
	case err != nil:
		return o, err
	case !changed && accepted.ProviderReference == h.ExternalID:
		// A callback attached this reference while the provider call was in
		// flight; only the handle details are still missing.
		updated, _, err := s.Advance(ctx, o.ID, func(Order) (Change, error) {
			return Change{Update: func(o *Order) { applyHandle(o, h) }}, nil
		})
		if err == nil {
			accepted = updated
		}
	case !changed:
		// Cancelled or failed while the provider call was in flight.
		s.cancelQuietly(ctx, g, accepted, h.ExternalID)
	}
	return accepted, nil
}

func (s *Service) cancelQuietly(ctx context.Context, g provider.Gateway, o Order, externalID string) {
	if _, err := g.Cancel(ctx, externalID); err != nil {
		logging.FromContext(ctx, s.logger).Warn("provider cancel failed",
			slog.String("order_id", o.ID),
			slog.String("provider_reference", externalID),
			slog.String("error", err.Error()),
		)
	}
}

// Cancel cancels an order on behalf of its owner and returns held funds.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (Order, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.cancellable(o); err != nil {
		return o, err
	}

	if o.ProviderReference != "" {
		g, err := s.gateways.Get(string(o.Kind))
		if err != nil {
			return o, err
		}
		ok, err := g.Cancel(ctx, o.ProviderReference)
		switch {
		case errors.Is(err, provider.ErrUnknownOrder):
		case errors.Is(err, provider.ErrNotCancellable):
			return o, fmt.Errorf("%w: provider refused", ErrNotCancellable)
		case err != nil:
			return o, err
		case !ok:
			return o, fmt.Errorf("%w: provider refused", ErrNotCancellable)
		}
	}

	out, _, err := s.Advance(ctx, orderID, func(cur Order) (Change, error) {
		if err := s.cancellable(cur); err != nil {
			return Change{}, err
		}
		return Change{To: StatusCancelled}, nil
	})
	if err != nil {
		return o, err
	}
	return out, nil
}

func (s *Service) cancellable(o Order) error {
	switch {
	case o.Status.IsTerminal():
		return fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
	case o.Kind == KindDeposit:
		return fmt.Errorf("%w: deposits cannot be cancelled", ErrNotCancellable)
	case o.DeliveredAt != nil:
		return fmt.Errorf("%w: content already delivered", ErrNotCancellable)
	case s.now().Sub(o.CreatedAt) < s.cancelMinAge:
		return fmt.Errorf("%w: wait %s after placing before cancelling", ErrNotCancellable, s.cancelMinAge)
	}
	return nil
}

// Decider inspects the current order under the wallet lock and returns the change
// to apply, or ErrNoChange.
type Decider func(o Order) (Change, error)

// Advance applies the change chosen by decide. It reports whether anything was
// written. Messages attached to the change are appended once each; the first one
// marks the order delivered.
func (s *Service) Advance(ctx context.Context, orderID string, decide Decider) (Order, bool, error) {
	current, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, false, err
	}

	var (
		out      Order
		from     Status
		changed  bool
		received []SMS
	)
	_, err = s.ledger.Update(ctx, current.WalletID, func(txCtx context.Context, w *ledger.Wallet) error {
		o, err := s.repo.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		out, from = o, o.Status

		c, err := decide(o)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if c.To == "" || c.To == o.Status {
			if c.Update != nil {
				c.Update(&o)
			}
			o.UpdatedAt = now
		} else if err := Step(&o, w, c, now); err != nil {
			return err
		}

		if len(c.Messages) > 0 {
			received, err = s.newMessages(txCtx, o.ID, c.Messages)
			if err != nil {
				return err
			}
			if len(received) > 0 && o.DeliveredAt == nil {
				at := received[0].ReceivedAt
				o.DeliveredAt = &at
			}
		}

		if err := s.repo.Update(txCtx, o); err != nil {
			return err
		}
		for _, m := range received {
			if err := s.repo.AppendSMS(txCtx, m); err != nil {
				return err
			}
		}
		out, changed = o, true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}

	if changed && out.Status != from {
		s.observe(ctx, out, from)
	}
	for _, m := range received {
		s.notify(ctx, notification.KindSMSReceived, out.UserID, m.Text)
	}
	return out, changed, nil
}

func (s *Service) newMessages(ctx context.Context, orderID string, msgs []provider.Message) ([]SMS, error) {
	existing, err := s.repo.Messages(ctx, orderID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.Text] = true
	}
	var out []SMS
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		at := m.ReceivedAt
		if at.IsZero() {
			at = s.now()
		}
		out = append(out, SMS{ID: uuid.NewString(), OrderID: orderID, Text: text, ReceivedAt: at.UTC()})
	}
	return out, nil
}

func (s *Service) observe(ctx context.Context, o Order, from Status) {
	s.metrics.IncTransition(string(o.Kind), string(o.Status))
	logging.FromContext(ctx, s.logger).Info("order transitioned",
		slog.String("order_id", o.ID),
		slog.String("kind", string(o.Kind)),
		slog.String("from", string(from)),
		slog.String("to", string(o.Status)),
	)
	switch {
	case o.Status == StatusFailed:
		s.notify(ctx, notification.KindOrderFailed, o.UserID,
			fmt.Sprintf("%s order %s failed: %s", o.Kind, o.ID, o.ErrorMessage))
	case o.Kind == KindDeposit && o.Status == StatusCompleted:
		s.notify(ctx, notification.KindDepositCredited, o.UserID,
			fmt.Sprintf("deposit of %s %s credited", o.Amount().StringFixed(money.FiatPlaces), o.Currency))
	}
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		logging.FromContext(ctx, s.logger).Warn("notification failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

// Get returns an order. A non-empty userID restricts the lookup to that owner.
func (s *Service) Get(ctx context.Context, userID, orderID string) (Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, ErrNotFound
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if userID != "" && o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *Service) GetByReference(ctx context.Context, kind Kind, reference string) (Order, error) {
	return s.repo.GetByReference(ctx, kind, reference)
}

func (s *Service) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID, filter)
}

// Messages returns the SMS log of an order owned by userID.
func (s *Service) Messages(ctx context.Context, userID, orderID string) ([]SMS, error) {
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.repo.Messages(ctx, orderID)
}

// Gateway returns the provider gateway for kind.
func (s *Service) Gateway(kind Kind) (provider.Gateway, error) {
	return s.gateways.Get(string(kind))
}

// applyHandle copies what the provider returned on acceptance into the details.
func applyHandle(o *Order, h provider.Handle) {
	switch {
	case o.Details.Number != nil:
		o.Details.Number.ActivationID = h.ExternalID
		if phone := rawString(h.Raw, "phone", "number", "phone_number"); phone != "" {
			o.Details.Number.PhoneNumber = phone
		}
		if route := rawString(h.Raw, "route", "operator"); route != "" {
			o.Details.Number.Route = route
		}
	case o.Details.Deposit != nil:
		d := o.Details.Deposit
		if url := rawString(h.Raw, "authorization_url"); url != "" {
			d.AuthorizationURL = url
		}
		if v := rawString(h.Raw, "account_number"); v != "" {
			d.AccountNumber = v
		}
		if v := rawString(h.Raw, "account_name"); v != "" {
			d.AccountName = v
		}
		if v := rawString(h.Raw, "bank_name", "bank"); v != "" {
			d.BankName = v
		}
	}
}

func rawString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
