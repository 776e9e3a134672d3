// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateOFDBSettings(&settings.OFDB); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	for i := range settings.Areas {
		if err := validateAreaSettings(&settings.Areas[i]); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateEmailSettings(&settings.Email); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateOFDBSettings(ofdb *OFDBSettings) error {
	if ofdb.URL == "" {
		return fmt.Errorf("OFDB URL must not be empty")
	}
	parsed, err := url.Parse(ofdb.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("OFDB URL is not a valid absolute URL: %s", ofdb.URL)
	}
	if ofdb.MaxRetries < 1 {
		return fmt.Errorf("OFDB maxretries must be at least 1, got %d", ofdb.MaxRetries)
	}
	if ofdb.RetryDelay < 0 {
		return fmt.Errorf("OFDB retrydelay must not be negative, got %d", ofdb.RetryDelay)
	}
	if ofdb.Concurrency < 1 {
		return fmt.Errorf("OFDB concurrency must be at least 1, got %d", ofdb.Concurrency)
	}
	if ofdb.Timeout < 1 {
		return fmt.Errorf("OFDB timeout must be at least 1 second, got %d", ofdb.Timeout)
	}
	if ofdb.ChunkSize < 1 {
		return fmt.Errorf("OFDB chunksize must be at least 1, got %d", ofdb.ChunkSize)
	}
	return nil
}

func validateAreaSettings(area *AreaSettings) error {
	if strings.TrimSpace(area.Name) == "" {
		return fmt.Errorf("area name must not be empty")
	}
	if area.LatChunks < 2 || area.LngChunks < 2 {
		return fmt.Errorf("area %s: latchunks and lngchunks must be at least 2, got %d and %d",
			area.Name, area.LatChunks, area.LngChunks)
	}
	if area.LatMin >= area.LatMax {
		return fmt.Errorf("area %s: latmin must be less than latmax", area.Name)
	}
	if area.LngMin >= area.LngMax {
		return fmt.Errorf("area %s: lngmin must be less than lngmax", area.Name)
	}
	if area.LatMin < -90 || area.LatMax > 90 {
		return fmt.Errorf("area %s: latitude range must be within [-90, 90]", area.Name)
	}
	if area.LngMin < -180 || area.LngMax > 180 {
		return fmt.Errorf("area %s: longitude range must be within [-180, 180]", area.Name)
	}
	return nil
}

func validateOutputSettings(output *OutputSettings) error {
	if !output.SQLite.Enabled && !output.MySQL.Enabled {
		return fmt.Errorf("at least one of output.sqlite or output.mysql must be enabled")
	}
	if output.SQLite.Enabled && output.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql may be enabled")
	}
	if output.SQLite.Enabled && output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty")
	}
	return nil
}

func validateEmailSettings(email *EmailSettings) error {
	if !email.Enabled {
		return nil
	}
	if email.APIKey == "" {
		return fmt.Errorf("email.apikey must be set when email is enabled")
	}
	if email.Sender == "" {
		return fmt.Errorf("email.sender must be set when email is enabled")
	}
	if email.RateLimit < 1 {
		return fmt.Errorf("email.ratelimit must be at least 1, got %d", email.RateLimit)
	}
	return nil
}
