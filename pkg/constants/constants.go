package constants

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type contextKey string

const (
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
	LoggerKey    contextKey = "logger"
	RequestStart contextKey = "requestStart"
)

// Validate reports fields by their JSON names.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}
