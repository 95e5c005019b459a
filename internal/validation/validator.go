// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package validation provides struct validation using go-playground/validator
// v10 behind a thread-safe singleton. It is used to validate the loaded
// configuration before the server starts.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the singleton validator instance, creating and
// configuring it on first use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct and returns a flattened, readable
// error listing every failed field.
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			messages = append(messages, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}
