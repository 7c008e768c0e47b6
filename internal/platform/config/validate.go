package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ValidationError lists fields that are missing or invalid. Unparsable values are reported
// by their environment key.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
})

func validate(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)

	var verrs validator.ValidationErrors
	if err := structValidator().Struct(cfg); errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, strings.TrimPrefix(fe.StructNamespace(), "Config."))
		}
	} else if err != nil {
		return err
	}

	if cfg.Firestore.Backend == StoreBackendFirestore {
		if cfg.Firebase.ProjectID == "" {
			fields = append(fields, "Firebase.ProjectID")
		}
		if cfg.Firestore.ProjectID == "" {
			fields = append(fields, "Firestore.ProjectID")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}
