package service

import (
	stderrors "errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so clients can match them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateRequest checks req's validate tags. Only the listed struct fields are
// checked when fields is non-empty.
func validateRequest(req any, fields ...string) error {
	var err error
	if len(fields) > 0 {
		err = validate.StructPartial(req, fields...)
	} else {
		err = validate.Struct(req)
	}
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errors.InvalidInput(fe.Field(), "is required")
	case "min":
		return errors.InvalidInput(fe.Field(), "must be at least "+fe.Param())
	case "gt":
		return errors.InvalidInput(fe.Field(), "must be greater than "+fe.Param())
	case "email":
		return errors.InvalidInput(fe.Field(), "must be a valid e-mail address")
	case "oneof":
		return errors.InvalidInput(fe.Field(), "must be one of "+fe.Param())
	default:
		return errors.InvalidInput(fe.Field(), "failed "+fe.Tag()+" validation")
	}
}

// ist is India Standard Time. Due times and report buckets use it.
var ist = time.FixedZone("IST", 5*60*60+30*60)

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. An empty
// string yields nil.
func parseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	return nil, errors.InvalidInput(field, "invalid date format, expected RFC 3339 or YYYY-MM-DD")
}

// dueTime is 19:00 IST on the IST calendar day of t.
func dueTime(t time.Time) time.Time {
	local := t.In(ist)
	return time.Date(local.Year(), local.Month(), local.Day(), 19, 0, 0, 0, ist)
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func offset(page, pageSize int) (limit, off int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
