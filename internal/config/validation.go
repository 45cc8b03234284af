package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation wraps every configuration validation failure.
var ErrValidation = errors.New("invalid configuration")

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), redact(fe)))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := c.AI.Location(); err != nil {
		return fmt.Errorf("%w: ai.timezone: %v", ErrValidation, err)
	}
	if c.Email.Enabled && len(c.Email.To) == 0 {
		return fmt.Errorf("%w: email.to is required when email is enabled", ErrValidation)
	}
	if c.Email.Enabled && c.Email.Transport == "sendgrid" && c.Email.SendGridAPIKey == "" {
		return fmt.Errorf("%w: email.sendgrid_api_key is required for the sendgrid transport", ErrValidation)
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("%w: scheduler task %q is enabled without a schedule", ErrValidation, name)
		}
	}
	return nil
}

// Location resolves the timezone used for daily caps.
func (c AIConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

var secretFields = map[string]bool{
	"APIKey": true, "Password": true, "SendGridAPIKey": true, "AdminToken": true,
	"ConsumerKey": true, "ConsumerSecret": true, "AccessToken": true, "AccessSecret": true,
}

func redact(fe validator.FieldError) any {
	if secretFields[fe.StructField()] {
		return "[redacted]"
	}
	return fe.Value()
}
