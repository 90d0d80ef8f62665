package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// RegisterCustomValidators registers rolegate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("selector", validateSelector); err != nil {
		return fmt.Errorf("failed to register selector validator: %w", err)
	}
	return nil
}

// validateSelector accepts a 0x-prefixed 4-byte hex selector.
func validateSelector(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := roles.ParseSelector(s)
	return err == nil
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if err := c.validateRoles(); err != nil {
		return err
	}
	return c.validateMembers()
}

// validateRoles checks the rules struct tags cannot express: unique role
// ids and targets, functions only on function clearance, one selector
// source per function and unique parameter indexes.
func (c *Config) validateRoles() error {
	seenRoles := make(map[uint16]struct{}, len(c.Roles))
	for i, r := range c.Roles {
		if _, dup := seenRoles[r.ID]; dup {
			return fmt.Errorf("roles[%d]: duplicate role id %d", i, r.ID)
		}
		seenRoles[r.ID] = struct{}{}

		seenTargets := make(map[string]struct{}, len(r.Targets))
		for j, t := range r.Targets {
			where := fmt.Sprintf("roles[%d].targets[%d]", i, j)
			addr := strings.ToLower(t.Address)
			if _, dup := seenTargets[addr]; dup {
				return fmt.Errorf("%s: duplicate target %s", where, t.Address)
			}
			seenTargets[addr] = struct{}{}

			if len(t.Functions) > 0 && t.Clearance != "function" {
				return fmt.Errorf("%s: functions require clearance \"function\", got %q", where, t.Clearance)
			}
			for k, fn := range t.Functions {
				if err := fn.validate(); err != nil {
					return fmt.Errorf("%s.functions[%d]: %w", where, k, err)
				}
			}
		}
	}
	return nil
}

func (f FunctionConfig) validate() error {
	if (f.Selector == "") == (f.Signature == "") {
		return errors.New("exactly one of selector or signature is required")
	}
	seen := make(map[int]struct{}, len(f.Parameters))
	for _, p := range f.Parameters {
		if _, dup := seen[p.Index]; dup {
			return fmt.Errorf("duplicate parameter index %d", p.Index)
		}
		seen[p.Index] = struct{}{}
		if p.Comparison != "oneof" && len(p.Values) != 1 {
			return fmt.Errorf("parameter %d: comparison %q takes exactly one value", p.Index, p.Comparison)
		}
		if (p.Comparison == "gt" || p.Comparison == "lt") && p.Type != "static" {
			return fmt.Errorf("parameter %d: comparison %q requires type static", p.Index, p.Comparison)
		}
	}
	return nil
}

func (c *Config) validateMembers() error {
	seen := make(map[string]struct{}, len(c.Members))
	for i, m := range c.Members {
		addr := strings.ToLower(m.Module)
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("members[%d]: duplicate module %s", i, m.Module)
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20-byte address", field)
	case "selector":
		return fmt.Sprintf("%s must be a 0x-prefixed 4-byte selector", field)
	case "hexadecimal":
		return fmt.Sprintf("%s must be hex encoded", field)
	case "gte", "lt", "lte":
		return fmt.Sprintf("%s is out of range (%s %s)", field, e.Tag(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
