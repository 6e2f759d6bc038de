package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump flattens an error chain into log fields, surfacing Postgres
// constraint details and Stripe request ids when present.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	PGCode       string
	PGConstraint string
	PGTable      string
	PGDetail     string

	StripeType      string
	StripeCode      string
	StripeRequestID string
	StripeStatus    int
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		d.StripeType = string(stripeErr.Type)
		d.StripeCode = string(stripeErr.Code)
		d.StripeRequestID = stripeErr.RequestID
		d.StripeStatus = stripeErr.HTTPStatusCode
	}
	return d
}

// Fields returns the non-empty parts of the dump keyed for the logger.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	put := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	put("error_code", string(d.Code))
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	put("pg_code", d.PGCode)
	put("pg_constraint", d.PGConstraint)
	put("pg_table", d.PGTable)
	put("pg_detail", d.PGDetail)
	put("stripe_error_type", d.StripeType)
	put("stripe_error_code", d.StripeCode)
	put("stripe_request_id", d.StripeRequestID)
	if d.StripeStatus != 0 {
		fields["stripe_status"] = d.StripeStatus
	}
	return fields
}
