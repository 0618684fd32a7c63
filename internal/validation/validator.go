package validation

import (
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// createdAtOrderId must look like "<ISO timestamp>#<order id>".
	v.RegisterStructValidation(emailStatusStructValidation, EmailStatusQuery{})

	return v
}

func emailStatusStructValidation(sl validatorv10.StructLevel) {
	q := sl.Current().Interface().(EmailStatusQuery)
	if q.CreatedAtOrderID == "" {
		return
	}

	ts, id, ok := strings.Cut(q.CreatedAtOrderID, "#")
	if !ok || id == "" {
		sl.ReportError(q.CreatedAtOrderID, "createdAtOrderId", "CreatedAtOrderID", "sort_key", "")
		return
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		sl.ReportError(q.CreatedAtOrderID, "createdAtOrderId", "CreatedAtOrderID", "sort_key", "")
	}
}
