// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package authtest provides test helpers for the auth packages.
package authtest

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// Clock is a manually advanced clock. The zero value starts at the zero time;
// use NewClock for a realistic starting point.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time. Pass c.Now wherever a func() time.Time is expected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FastHasher returns a bcrypt hasher at the minimum cost.
func FastHasher() *auth.BcryptHasher {
	h, err := auth.NewBcryptHasherWithCost(bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}
