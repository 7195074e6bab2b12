// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Reset code configuration.
const (
	ResetCodeLength      = 6
	ResetCodeExpiry      = 10 * time.Minute
	ResetResendInterval  = 60 * time.Second
	MaxResetCodeAttempts = 5

	resetCodeMin   = 100000
	resetCodeRange = 900000 // codes span 100000..999999
)

// ResetOTP is the in-flight password reset state stored on a User.
type ResetOTP struct {
	Hash       string
	ExpiresAt  time.Time
	Attempts   int
	LastSentAt time.Time
}

// NewResetOTP builds reset state for a freshly issued code hash.
func NewResetOTP(hash string, now time.Time) *ResetOTP {
	now = now.UTC()
	return &ResetOTP{
		Hash:       hash,
		ExpiresAt:  now.Add(ResetCodeExpiry),
		Attempts:   0,
		LastSentAt: now,
	}
}

// IsExpiredAt returns true if the code would be expired at the given time.
func (o *ResetOTP) IsExpiredAt(t time.Time) bool {
	return t.After(o.ExpiresAt)
}

// IsExhausted returns true once the attempt ceiling is reached.
func (o *ResetOTP) IsExhausted() bool {
	return o.Attempts >= MaxResetCodeAttempts
}

// ResendAvailableIn returns how long until another code may be sent.
// Zero means a new code may be issued now.
func (o *ResetOTP) ResendAvailableIn(t time.Time) time.Duration {
	wait := o.LastSentAt.Add(ResetResendInterval).Sub(t)
	if wait < 0 {
		return 0
	}
	return wait
}

// GenerateResetCode returns a uniformly random six digit code.
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeRange))
	if err != nil {
		return "", oops.Code("RESET_CODE_GENERATE_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%06d", resetCodeMin+n.Int64()), nil
}

// NormalizeResetCode strips everything but digits and truncates to ResetCodeLength,
// so "123 456" and "123-456" are accepted as typed.
func NormalizeResetCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == ResetCodeLength {
			break
		}
	}
	return b.String()
}
