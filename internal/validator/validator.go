// Package validator wires go-playground/validator into Gin's binding engine
// and turns binding failures into per-field messages keyed by JSON name.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// BodyField is the key used for errors that concern the request body as a whole.
const BodyField = "body"

var trans ut.Translator

// Messages that read better than the library defaults for the attempt API.
var overrides = map[string]string{
	"uuid": "{0} must be a valid id",
	"min":  "{0} must be {1} or greater",
}

// Setup registers English translations on Gin's binding engine, reporting
// field names by their JSON tag. Call once during startup.
func Setup() error {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return errors.New("validator: gin binding engine is not go-playground/validator")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	trans, _ = ut.New(enLocale, enLocale).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return fmt.Errorf("validator: register translations: %w", err)
	}

	for tag, text := range overrides {
		register := func(ut ut.Translator) error { return ut.Add(tag, text, true) }
		if err := v.RegisterTranslation(tag, trans, register, translateParam); err != nil {
			return fmt.Errorf("validator: register %q translation: %w", tag, err)
		}
	}
	return nil
}

func translateParam(ut ut.Translator, fe govalidator.FieldError) string {
	params := []string{fe.Field()}
	if fe.Param() != "" {
		params = append(params, fe.Param())
	}
	msg, err := ut.T(fe.Tag(), params...)
	if err != nil {
		return fe.Error()
	}
	return msg
}

// TranslateErrors maps a binding error to field name -> message. Errors that
// do not belong to a single field are reported under BodyField.
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &ve):
		for _, fe := range ve {
			if trans == nil {
				fields[fe.Field()] = fe.Error()
				continue
			}
			fields[fe.Field()] = fe.Translate(trans)
		}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		fields[typeErr.Field] = fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr.Type))
	case errors.Is(err, io.EOF):
		fields[BodyField] = "request body is required"
	case errors.As(err, &syntaxErr):
		fields[BodyField] = fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	default:
		fields[BodyField] = err.Error()
	}
	return fields
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// Bind decodes and validates the JSON body into dst. It returns nil on
// success or the translated field errors.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
