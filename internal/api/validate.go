package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// validate checks admin API payloads. Rules live here rather than as tags
// on the models so the data layer stays free of transport concerns.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		return !containsControlChars(fl.Field().String())
	})

	v.RegisterStructValidationMapRules(map[string]string{
		"Name":       "required,hostname_rfc1123,max=253",
		"HomeSwitch": "max=253,nocontrol",
		"Language":   "max=20,nocontrol",
		"HoldMusic":  "max=200,nocontrol",
	}, models.Tenant{})

	v.RegisterStructValidationMapRules(map[string]string{
		"TenantID":    "required",
		"Number":      "required,max=40,nocontrol,excludesall=@/",
		"NumberAlias": "max=40,nocontrol",
		"Password":    "max=256",
		"UserContext": "max=200,nocontrol",
		"CallTimeout": "min=0,max=3600",
		"LimitMax":    "min=-1",
		"BypassMedia": "omitempty,oneof=bypass-media bypass-media-after-bridge proxy-media",
		"Description": "max=1000",
	}, models.Extension{})

	v.RegisterStructValidationMapRules(map[string]string{
		"MailTo":   "omitempty,email,max=254",
		"Password": "omitempty,numeric,max=20",
	}, models.Voicemail{})

	v.RegisterStructValidationMapRules(map[string]string{
		"Context":     "required,max=200,nocontrol",
		"Name":        "required,max=200,nocontrol",
		"Number":      "max=200",
		"Sequence":    "min=0",
		"XML":         "required",
		"Description": "max=1000",
	}, models.Dialplan{})

	v.RegisterStructValidationMapRules(map[string]string{
		"TenantID":    "required",
		"Name":        "required,max=200,nocontrol",
		"Extension":   "required,max=40,nocontrol,excludesall=@/",
		"FeatureCode": "max=40,nocontrol",
		"PIN":         "omitempty,numeric,min=4,max=20",
		"DayApp":      "required,max=100,nocontrol",
		"NightApp":    "required,max=100,nocontrol",
		"DayData":     "max=1000",
		"NightData":   "max=1000",
		"Description": "max=1000",
	}, models.CallFlow{})

	v.RegisterStructValidationMapRules(map[string]string{
		"SIPProfileID":      "required",
		"Name":              "required,max=200,nocontrol,excludesall=/",
		"Proxy":             "required,max=253,nocontrol",
		"Realm":             "max=253,nocontrol",
		"FromDomain":        "max=253,nocontrol",
		"ExpireSeconds":     "min=0",
		"RetrySeconds":      "min=0",
		"Ping":              "min=0",
		"RegisterTransport": "omitempty,oneof=udp tcp tls",
		"Context":           "max=200,nocontrol",
	}, models.Gateway{})

	return v
}

// validationMessage turns the first failed rule of err into a client-facing
// message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fe.Kind() == reflect.String {
			return field + " exceeds maximum length"
		}
		return field + " must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return field + " is too short"
		}
		return field + " must be at least " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "email":
		return field + " is not a valid email address"
	case "hostname_rfc1123":
		return field + " is not a valid domain"
	case "numeric":
		return field + " must contain only digits"
	default:
		return field + " contains invalid characters"
	}
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}
