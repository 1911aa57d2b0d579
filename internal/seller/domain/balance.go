package domain

import "time"

// Credit adds a fresh net earning to the pending bucket.
func (b *SellerBalance) Credit(net int64, now time.Time) error {
	if net < 0 {
		return ErrInvalidAmount
	}
	b.PendingAmount += net
	b.UpdatedAt = now
	return nil
}

// Promote moves net from pending to ready for payout.
func (b *SellerBalance) Promote(net int64, now time.Time) error {
	return b.apply(-net, net, 0, now)
}

// Pay moves net from ready for payout to paid.
func (b *SellerBalance) Pay(net int64, now time.Time) error {
	return b.apply(0, -net, net, now)
}

// Withdraw removes net from the bucket that holds a transaction in status.
func (b *SellerBalance) Withdraw(status SellerTransactionStatus, net int64, now time.Time) error {
	switch status {
	case StatusPending:
		return b.apply(-net, 0, 0, now)
	case StatusReadyForPayout:
		return b.apply(0, -net, 0, now)
	default:
		return ErrInvalidTransition
	}
}

func (b *SellerBalance) apply(pending, ready, paid int64, now time.Time) error {
	next := *b
	next.PendingAmount += pending
	next.ReadyForPayoutAmount += ready
	next.PaidAmount += paid
	if !next.valid() {
		return ErrNegativeBalance
	}
	next.UpdatedAt = now
	*b = next
	return nil
}

// ExpectedBalance recomputes the buckets from the seller's transactions.
func ExpectedBalance(base SellerBalance, txns []SellerTransaction) SellerBalance {
	out := base
	out.PendingAmount, out.ReadyForPayoutAmount, out.PaidAmount = 0, 0, 0
	for _, txn := range txns {
		switch txn.Status {
		case StatusPending:
			out.PendingAmount += txn.NetAmount
		case StatusReadyForPayout:
			out.ReadyForPayoutAmount += txn.NetAmount
		case StatusPaid:
			out.PaidAmount += txn.NetAmount
		}
	}
	return out
}

var sellerTransitions = map[SellerTransactionStatus][]SellerTransactionStatus{
	StatusPending:        {StatusReadyForPayout, StatusReversed},
	StatusReadyForPayout: {StatusPaid, StatusReversed},
}

func CanTransition(from, to SellerTransactionStatus) bool {
	for _, next := range sellerTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
