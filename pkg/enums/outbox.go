package enums

// OutboxEventType enumerates events emitted through the transactional outbox.
type OutboxEventType string

const (
	OutboxEventPaymentSettled OutboxEventType = "payment.settled"
	OutboxEventPaymentParked  OutboxEventType = "payment.parked"
	OutboxEventAmountMismatch OutboxEventType = "payment.amount_mismatch"
	OutboxEventSweepCompleted OutboxEventType = "reconciliation.sweep_completed"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregatePayment        OutboxAggregateType = "payment"
	OutboxAggregateInvoice        OutboxAggregateType = "invoice"
	OutboxAggregateReconciliation OutboxAggregateType = "reconciliation"
)
