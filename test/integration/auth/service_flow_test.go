// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

//go:build integration

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/auth/authtest"
	"github.com/taskmaster/taskmaster/pkg/errutil"
)

var _ = Describe("Auth services on PostgreSQL", func() {
	var (
		ctx   context.Context
		clock *authtest.Clock
		svc   *auth.Service
		reset *auth.PasswordResetService
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		r := postgresBackend(clock)

		opts := []auth.Option{
			auth.WithClock(clock.Now),
			auth.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		}
		var err error
		svc, err = auth.NewAuthService(r.users, r.sessions, authtest.FastHasher(), opts...)
		Expect(err).NotTo(HaveOccurred())
		reset, err = auth.NewPasswordResetService(r.users, authtest.FastHasher(), opts...)
		Expect(err).NotTo(HaveOccurred())
	})

	It("signs up, logs in, updates the profile and logs out", func() {
		user, session, err := svc.Signup(ctx, "Grace@Example.com", "correct horse", "Grace")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Email).To(Equal("grace@example.com"))

		current, err := svc.CurrentUser(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(current.ID).To(Equal(user.ID))

		_, _, err = svc.Signup(ctx, "grace@example.com", "another one", "")
		Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateEmail))

		_, _, err = svc.Login(ctx, "grace@example.com", "wrong")
		Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidCredentials))

		_, login, err := svc.Login(ctx, "GRACE@example.com", "correct horse")
		Expect(err).NotTo(HaveOccurred())

		name := "Grace H."
		updated, err := svc.UpdateProfile(ctx, login.ID, auth.ProfileUpdate{Name: &name})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Name).To(Equal("Grace H."))

		Expect(svc.Logout(ctx, login.ID)).To(Succeed())
		_, err = svc.CurrentUser(ctx, login.ID)
		Expect(errutil.Code(err)).To(Equal(auth.CodeUnauthorized))

		// The signup session is unaffected by the other logout.
		_, err = svc.CurrentUser(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("provisions independent guest accounts", func() {
		a, _, err := svc.GuestLogin(ctx)
		Expect(err).NotTo(HaveOccurred())
		b, _, err := svc.GuestLogin(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(a.IsGuest).To(BeTrue())
		Expect(a.ID).NotTo(Equal(b.ID))
		Expect(a.Email).To(MatchRegexp(`^guest_[0-9a-f]{8}@example\.com$`))
	})

	It("resets a password with an emailed code", func() {
		_, _, err := svc.Signup(ctx, "heidi@example.com", "old password", "")
		Expect(err).NotTo(HaveOccurred())

		code, err := reset.RequestReset(ctx, "heidi@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(HaveLen(auth.ResetCodeLength))

		_, err = reset.RequestReset(ctx, "heidi@example.com")
		Expect(errutil.Code(err)).To(Equal(auth.CodeRateLimited))

		_, err = reset.CompleteReset(ctx, "heidi@example.com", "000000", "new password")
		Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidOTP))

		user, err := reset.CompleteReset(ctx, "heidi@example.com", code, "new password")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ResetOTP).To(BeNil())

		_, _, err = svc.Login(ctx, "heidi@example.com", "old password")
		Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidCredentials))
		_, _, err = svc.Login(ctx, "heidi@example.com", "new password")
		Expect(err).NotTo(HaveOccurred())

		// A used code cannot be replayed.
		_, err = reset.CompleteReset(ctx, "heidi@example.com", code, "third password")
		Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidOTP))
	})

	It("expires sessions after a week", func() {
		_, session, err := svc.Signup(ctx, "ivan@example.com", "password1", "")
		Expect(err).NotTo(HaveOccurred())

		clock.Advance(auth.SessionTTL + time.Second)
		_, err = svc.CurrentUser(ctx, session.ID)
		Expect(errutil.Code(err)).To(Equal(auth.CodeUnauthorized))
	})
})
