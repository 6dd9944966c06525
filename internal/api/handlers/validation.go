package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	durationPattern = regexp.MustCompile(`^(-?\d+(\.\d+)?(d|h|m))+$`)
	reasonPattern   = regexp.MustCompile(`^[a-zA-Z0-9., ]+$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	registerOnce sync.Once
	registerErr  error
)

// fieldMessages are the user-facing messages for fields that fail validation.
var fieldMessages = map[string]string{
	"limit":       "limit must be a positive integer",
	"offset":      "offset must be a non-negative integer",
	"unpaged":     "unpaged must be a boolean (true or false)",
	"simulated":   "simulated must be a boolean (true or false)",
	"only_active": "only_active must be a boolean (true or false)",
	"ip_address":  "ip_address must be a valid IPv4 or IPv6 address",
	"country":     "country must be a 2-letter country code (ISO 3166-1 alpha-2)",
	"since":       "since must be a past date in yyyy-mm-dd format (not today or future dates)",
	"amount":      "amount must be a positive integer",
	"ip":          "ip must be a valid IPv4 or IPv6 address",
	"duration":    "duration must be in format: days(d), hours(h), minutes(m) (e.g., 15m, 4h, 1d, 1d4h15m, 4h15m)",
	"reason":      "reason must contain only letters, numbers, spaces, dots and commas",
	"type":        "type must be one of: ban, captcha, throttle, allow",
}

// RegisterValidators installs the custom tags on gin's validator and makes
// errors report query/JSON field names.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		v.RegisterTagNameFunc(fieldName)
		custom := map[string]validator.Func{
			"crowdsec_duration": matches(durationPattern),
			"decision_reason":   matches(reasonPattern),
			"past_date":         pastDate,
		}
		for tag, fn := range custom {
			if err := v.RegisterValidation(tag, fn); err != nil {
				registerErr = fmt.Errorf("register %s validator: %w", tag, err)
				return
			}
		}
	})
	return registerErr
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"form", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// pastDate accepts yyyy-mm-dd dates strictly before today (UTC).
func pastDate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if !datePattern.MatchString(value) {
		return false
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return false
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return day.Before(today)
}

type fieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// respondValidation writes 400 with one entry per invalid field.
func respondValidation(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Validation error",
			"errors":  []fieldError{{Message: err.Error()}},
		})
		return
	}

	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Validation error", "errors": out})
}

func describe(fe validator.FieldError) fieldError {
	field, _, _ := strings.Cut(fe.Field(), "[")
	if fe.Tag() == "required" {
		return fieldError{Field: field, Message: field + " is required"}
	}
	if msg, ok := fieldMessages[field]; ok {
		return fieldError{Field: field, Message: msg}
	}
	return fieldError{Field: field, Message: fmt.Sprintf("%s is invalid", field)}
}
