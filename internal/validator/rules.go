package validator

import (
	"log"
	"regexp"

	"github.com/go-playground/validator/v10"

	"mwork_attachments/internal/imageprocessor"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// 'geometry': style geometry accepted by imageprocessor.ParseSize
	mustRegister("geometry", func(fl validator.FieldLevel) bool {
		_, err := imageprocessor.ParseSize("style", fl.Field().String())
		return err == nil
	})

	// 'identifier': entity kinds and attachment names end up in storage paths
	mustRegister("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
}
