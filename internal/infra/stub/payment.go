package stub

import (
	"context"

	"github.com/segmentio/ksuid"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// declineAmount is the charge amount the stub always declines, for exercising failure paths.
const declineAmount = 13.13

// maxChargeAmount is the single-charge ceiling.
const maxChargeAmount = 100000

// PaymentProcessor approves every well-formed charge except the decline amount.
type PaymentProcessor struct{}

// NewPaymentProcessor builds the stub processor.
func NewPaymentProcessor() *PaymentProcessor {
	return &PaymentProcessor{}
}

// Charge settles charge and returns a processor reference.
func (p *PaymentProcessor) Charge(ctx context.Context, charge domain.PaymentCharge) (domain.PaymentOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentOutcome{}, err
	}

	ref := "pi_" + ksuid.New().String()
	switch {
	case !charge.Method.Valid():
		return domain.PaymentOutcome{Status: domain.TransactionFailed, ProcessorRef: ref, FailureReason: "unsupported_method"}, nil
	case charge.Amount <= 0:
		return domain.PaymentOutcome{Status: domain.TransactionFailed, ProcessorRef: ref, FailureReason: "invalid_amount"}, nil
	case charge.Amount > maxChargeAmount:
		return domain.PaymentOutcome{Status: domain.TransactionFailed, ProcessorRef: ref, FailureReason: "limit_exceeded"}, nil
	case domain.RoundMoney(charge.Amount) == declineAmount:
		return domain.PaymentOutcome{Status: domain.TransactionFailed, ProcessorRef: ref, FailureReason: "card_declined"}, nil
	}
	return domain.PaymentOutcome{Status: domain.TransactionCompleted, ProcessorRef: ref}, nil
}

var _ port.PaymentProcessor = (*PaymentProcessor)(nil)
