package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

var (
	sharedValidator     *validator.Validate
	sharedValidatorOnce sync.Once
)

// StructValidator returns the process-wide validator used for request bodies
// and configuration files.
func StructValidator() *validator.Validate {
	sharedValidatorOnce.Do(func() {
		sharedValidator = validator.New()
	})
	return sharedValidator
}

type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = StructValidator()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request: %v", err))
	}
	return nil
}
