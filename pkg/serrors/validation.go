package serrors

import (
	"errors"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/iota-uz/registrar/pkg/constants"
)

// ValidationErrors maps a field name to a human readable message.
type ValidationErrors map[string]string

var englishTranslator = sync.OnceValues(func() (ut.Translator, error) {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(constants.Validate, trans); err != nil {
		return nil, err
	}
	return trans, nil
})

// ProcessValidatorErrors extracts validator failures from err and translates
// them to English. It reports false when err carries none.
func ProcessValidatorErrors(err error) (ValidationErrors, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	trans, tErr := englishTranslator()
	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		if tErr != nil {
			out[fe.Field()] = fe.Error()
			continue
		}
		out[fe.Field()] = fe.Translate(trans)
	}
	return out, true
}
