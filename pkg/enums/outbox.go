package enums

import "fmt"

// OutboxAggregateType is the aggregate_type_enum column.
type OutboxAggregateType string

const (
	AggregateProduct OutboxAggregateType = "product"
	AggregateOrder   OutboxAggregateType = "order"
	AggregateReturn  OutboxAggregateType = "return"
	AggregateCompany OutboxAggregateType = "company"
)

// OutboxEventType is the event_type_enum column.
type OutboxEventType string

const (
	EventStockAdjusted        OutboxEventType = "stock_adjusted"
	EventOrderRecorded        OutboxEventType = "order_recorded"
	EventReturnCreated        OutboxEventType = "return_created"
	EventAccountStatusChanged OutboxEventType = "account_status_changed"
)

// eventAggregates pins every event type to the one aggregate it may be
// emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventStockAdjusted:        AggregateProduct,
	EventOrderRecorded:        AggregateOrder,
	EventReturnCreated:        AggregateReturn,
	EventAccountStatusChanged: AggregateCompany,
}

func (e OutboxEventType) String() string { return string(e) }

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to.
func (e OutboxEventType) Aggregate() (OutboxAggregateType, bool) {
	agg, ok := eventAggregates[e]
	return agg, ok
}

// Accepts reports whether an event of type e may reference aggregate a.
func (e OutboxEventType) Accepts(a OutboxAggregateType) bool {
	agg, ok := eventAggregates[e]
	return ok && agg == a
}

func (a OutboxAggregateType) String() string { return string(a) }

func (a OutboxAggregateType) IsValid() bool {
	for _, agg := range eventAggregates {
		if agg == a {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}
