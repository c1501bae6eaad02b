package coursequiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// generatedQuestion is one element of the generation wire format.
type generatedQuestion struct {
	Question           string   `json:"question" validate:"required"`
	Options            []string `json:"options" validate:"required,len=4,dive,required"`
	CorrectOptionIndex *int     `json:"correctOptionIndex" validate:"required,min=0,max=3"`
	Explanation        string   `json:"explanation"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// stripCodeFence removes an optional ``` or ```json fence around a model reply.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```JSON"):
		s = s[len("```JSON"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseGeneratedQuestions decodes and checks a model reply. Any problem
// with the reply is reported as a *ValidationError.
func parseGeneratedQuestions(raw string) ([]generatedQuestion, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, &ValidationError{Reason: "empty generation response"}
	}

	var questions []generatedQuestion
	if err := json.Unmarshal([]byte(body), &questions); err != nil {
		return nil, &ValidationError{Reason: "generation response is not a JSON array of questions", Err: err}
	}
	if len(questions) == 0 {
		return nil, &ValidationError{Reason: "generation response contains no questions"}
	}

	for i := range questions {
		if err := validate.Struct(&questions[i]); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("question %d: %s", i+1, describeValidation(err)), Err: err}
		}
	}
	return questions, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", fe.Field(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s out of range", fe.Field())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
