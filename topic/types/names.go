// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds topic and group names.
const MaxNameLength = 1024

// ErrInvalidName indicates a topic or group name that cannot be stored.
var ErrInvalidName = errors.New("invalid name")

// ValidateTopic checks that a topic name is non-empty UTF-8 without NUL,
// which separates names in record keys.
func ValidateTopic(topic string) error {
	return validateName("topic", topic)
}

// ValidateGroup checks a subscription group name like ValidateTopic.
func ValidateGroup(group string) error {
	return validateName("group", group)
}

func validateName(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidName, kind)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidName, kind, MaxNameLength)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidName, kind)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %s contains NUL", ErrInvalidName, kind)
	}
	return nil
}
