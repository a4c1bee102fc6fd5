package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// reasonByConstraint names the workflow rule behind schema constraints that
// back a business invariant.
var reasonByConstraint = map[string]Reason{
	"ux_purchase_contracts_docking_id":   ReasonDuplicateContract,
	"ux_purchase_orders_contract_id":     ReasonDuplicateOrder,
	"ux_stock_reservations_active_order": ReasonDuplicateReservation,
	"chk_products_stock_non_negative":    ReasonInsufficientStock,
	"chk_products_reserved_non_negative": ReasonInsufficientStock,
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Reason     Reason `json:"reason,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Reason = te.Reason()
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

	if d.Reason == "" && d.PGConstraint != "" {
		d.Reason = reasonByConstraint[d.PGConstraint]
	}
	return d
}

// Fields returns the non-empty dump attributes keyed for the request log.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if d.Reason != "" {
		fields["reason"] = string(d.Reason)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_detail":     d.PGDetail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// ConstraintReason maps a constraint violation inside err onto the workflow
// rule it enforces. Postgres reports the constraint name; sqlite only reports
// the message, which is matched against the known names.
func ConstraintReason(err error) (Reason, bool) {
	if err == nil {
		return "", false
	}
	if d := Dump(err); d.PGConstraint != "" {
		reason, ok := reasonByConstraint[d.PGConstraint]
		return reason, ok
	}
	msg := err.Error()
	for constraint, reason := range reasonByConstraint {
		if strings.Contains(msg, constraint) {
			return reason, true
		}
	}
	return "", false
}
