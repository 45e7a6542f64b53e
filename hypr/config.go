package hypr

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ClientConfig tunes the resilience envelope of a Client.
type ClientConfig struct {
	// RequestTimeout bounds one synchronous request attempt.
	RequestTimeout time.Duration `validate:"gt=0"`

	// ListenerTimeout bounds one run of the native event loop before
	// the listener is considered hung and rebuilt.
	ListenerTimeout time.Duration `validate:"gt=0"`

	// RetryAttempts is the total number of attempts for one
	// synchronous request.
	RetryAttempts int `validate:"gte=1"`

	// RetryBackoff is the base pause between attempts. The pause
	// grows linearly with the attempt number.
	RetryBackoff time.Duration `validate:"gte=0"`
}

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout:  2 * time.Second,
		ListenerTimeout: 60 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    250 * time.Millisecond,
	}
}

var validate = validator.New()

// Validate checks the configuration bounds.
func (c ClientConfig) Validate() error {
	return validate.Struct(c)
}
