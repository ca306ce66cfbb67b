package middleware

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kmc/ehr-api/internal/model"
)

var registerOnce sync.Once

// RegisterValidators installs the clinic's custom binding tags on gin's
// validator and reports fields by their json names.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		for tag, fn := range map[string]validator.Func{
			"gender": validGender,
			"icd10":  validICD10,
		} {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
	})
}

func validGender(fl validator.FieldLevel) bool {
	_, err := model.NormalizeGender(fl.Field().String())
	return err == nil
}

func validICD10(fl validator.FieldLevel) bool {
	return model.ValidICD10(strings.TrimSpace(fl.Field().String()))
}
