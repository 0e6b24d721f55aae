package otpAuth

import (
	"regexp"
	"strings"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/notify"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

type identifierKind int

const (
	identifierEmail identifierKind = iota + 1
	identifierPhone
)

type identifier struct {
	kind  identifierKind
	value string
}

// normalizeIdentifier lowercases emails and strips formatting from phone
// numbers so one person maps to one rate-limit and lookup key.
func normalizeIdentifier(raw string) (identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return identifier{}, &ValidationError{Field: "identifier", Reasons: []string{"required"}}
	}

	if strings.Contains(s, "@") {
		s = strings.ToLower(s)
		if len(s) > 254 || !emailRegex.MatchString(s) {
			return identifier{}, &ValidationError{Field: "identifier", Reasons: []string{"invalid email"}}
		}
		return identifier{kind: identifierEmail, value: s}, nil
	}

	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
	if !phoneRegex.MatchString(s) {
		return identifier{}, &ValidationError{Field: "identifier", Reasons: []string{"invalid phone number"}}
	}
	return identifier{kind: identifierPhone, value: s}, nil
}

func (id identifier) rateType() rate.IdentifierType {
	if id.kind == identifierPhone {
		return rate.IdentifierPhone
	}
	return rate.IdentifierEmail
}

func (id identifier) channel() notify.Channel {
	if id.kind == identifierPhone {
		return notify.ChannelSMS
	}
	return notify.ChannelEmail
}
