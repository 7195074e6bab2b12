// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

//go:build integration

package auth_test

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/auth/authtest"
	"github.com/taskmaster/taskmaster/internal/auth/filestore"
	authpg "github.com/taskmaster/taskmaster/internal/auth/postgres"
	"github.com/taskmaster/taskmaster/pkg/errutil"
)

// repos is one storage backend under test.
type repos struct {
	users    auth.UserRepository
	sessions auth.SessionRepository
}

// backendFactory builds fresh, empty repositories driven by clock.
type backendFactory func(clock *authtest.Clock) repos

func postgresBackend(clock *authtest.Clock) repos {
	env.reset()
	return repos{
		users:    authpg.NewUserRepository(env.pool, authpg.WithClock(clock.Now)),
		sessions: authpg.NewSessionRepository(env.pool, authpg.WithClock(clock.Now)),
	}
}

func fileBackend(clock *authtest.Clock) repos {
	fs, err := filestore.Open(GinkgoT().TempDir(), filestore.WithClock(clock.Now))
	Expect(err).NotTo(HaveOccurred())
	return repos{users: fs.Users(), sessions: fs.Sessions()}
}

var _ = Describe("PostgreSQL repositories", func() {
	repositoryContract(postgresBackend)
})

var _ = Describe("File store repositories", func() {
	repositoryContract(fileBackend)
})

func newUser(email string, guest bool, now time.Time) *auth.User {
	u, err := auth.NewUser(email, "Test User", "$2a$04$hash", guest, now)
	Expect(err).NotTo(HaveOccurred())
	return u
}

func repositoryContract(build backendFactory) {
	var (
		ctx   context.Context
		clock *authtest.Clock
		r     repos
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		r = build(clock)
	})

	Describe("users", func() {
		It("creates and retrieves by ID and normalized email", func() {
			u := newUser("Alice@Example.com", false, clock.Now())
			Expect(r.users.Create(ctx, u)).To(Succeed())

			byID, err := r.users.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("alice@example.com"))
			Expect(byID.Name).To(Equal("Test User"))
			Expect(byID.IsGuest).To(BeFalse())
			Expect(byID.ResetOTP).To(BeNil())
			Expect(byID.CreatedAt).To(BeTemporally("~", clock.Now(), time.Millisecond))

			byEmail, err := r.users.GetByEmail(ctx, "  ALICE@example.COM ")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(u.ID))
		})

		It("reports unknown users as not found", func() {
			_, err := r.users.GetByID(ctx, ulid.Make())
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

			_, err = r.users.GetByEmail(ctx, "nobody@example.com")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("rejects a second regular account with the same email", func() {
			Expect(r.users.Create(ctx, newUser("bob@example.com", false, clock.Now()))).To(Succeed())

			err := r.users.Create(ctx, newUser("BOB@example.com", false, clock.Now()))
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
			Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateEmail))
		})

		It("lets guests share an email and prefers the regular account on lookup", func() {
			guest1 := newUser("shared@example.com", true, clock.Now())
			guest2 := newUser("shared@example.com", true, clock.Now())
			Expect(r.users.Create(ctx, guest1)).To(Succeed())
			Expect(r.users.Create(ctx, guest2)).To(Succeed())

			regular := newUser("shared@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, regular)).To(Succeed())

			found, err := r.users.GetByEmail(ctx, "shared@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(regular.ID))
		})

		It("lists users in creation order", func() {
			first := newUser("first@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, first)).To(Succeed())
			clock.Advance(time.Second)
			second := newUser("second@example.com", true, clock.Now())
			Expect(r.users.Create(ctx, second)).To(Succeed())

			all, err := r.users.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].ID).To(Equal(first.ID))
			Expect(all[1].ID).To(Equal(second.ID))
		})

		It("applies partial updates and stamps UpdatedAt", func() {
			u := newUser("carol@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, u)).To(Succeed())
			clock.Advance(time.Hour)

			name := "Carol"
			updated, err := r.users.Update(ctx, u.ID, auth.UserPatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Carol"))
			Expect(updated.Email).To(Equal("carol@example.com"))
			Expect(updated.PasswordHash).To(Equal(u.PasswordHash))
			Expect(updated.UpdatedAt).To(BeTemporally("~", clock.Now(), time.Millisecond))

			email := "Carol.New@Example.com"
			updated, err = r.users.Update(ctx, u.ID, auth.UserPatch{Email: &email})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Email).To(Equal("carol.new@example.com"))
			Expect(updated.Name).To(Equal("Carol"))
		})

		It("stores updated names without surrounding whitespace", func() {
			u := newUser("gina@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, u)).To(Succeed())

			name := "  Gina  "
			updated, err := r.users.Update(ctx, u.ID, auth.UserPatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Gina"))

			stored, err := r.users.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Name).To(Equal("Gina"))
		})

		It("rejects changing to an email another regular account holds", func() {
			Expect(r.users.Create(ctx, newUser("taken@example.com", false, clock.Now()))).To(Succeed())
			u := newUser("dave@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, u)).To(Succeed())

			email := "taken@example.com"
			_, err := r.users.Update(ctx, u.ID, auth.UserPatch{Email: &email})
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})

		It("reports updates to unknown users as not found", func() {
			name := "Ghost"
			_, err := r.users.Update(ctx, ulid.Make(), auth.UserPatch{Name: &name})
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		Describe("reset state", func() {
			var u *auth.User

			BeforeEach(func() {
				u = newUser("erin@example.com", false, clock.Now())
				Expect(r.users.Create(ctx, u)).To(Succeed())
			})

			It("stores and clears the in-flight code", func() {
				otp := auth.NewResetOTP("otp-hash", clock.Now())
				Expect(r.users.SetResetOTP(ctx, u.ID, otp)).To(Succeed())

				got, err := r.users.GetByID(ctx, u.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ResetOTP).NotTo(BeNil())
				Expect(got.ResetOTP.Hash).To(Equal("otp-hash"))
				Expect(got.ResetOTP.Attempts).To(Equal(0))
				Expect(got.ResetOTP.ExpiresAt).To(BeTemporally("~", clock.Now().Add(auth.ResetCodeExpiry), time.Millisecond))
				Expect(got.ResetOTP.LastSentAt).To(BeTemporally("~", clock.Now(), time.Millisecond))

				Expect(r.users.SetResetOTP(ctx, u.ID, nil)).To(Succeed())
				got, err = r.users.GetByID(ctx, u.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ResetOTP).To(BeNil())
			})

			It("counts attempts against the in-flight code", func() {
				Expect(r.users.SetResetOTP(ctx, u.ID, auth.NewResetOTP("otp-hash", clock.Now()))).To(Succeed())

				for want := 1; want <= 3; want++ {
					n, err := r.users.IncrementResetAttempts(ctx, u.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(Equal(want))
				}
			})

			It("refuses to count attempts without a code in flight", func() {
				_, err := r.users.IncrementResetAttempts(ctx, u.ID)
				Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			})

			It("clears the code in the same write as a password change", func() {
				Expect(r.users.SetResetOTP(ctx, u.ID, auth.NewResetOTP("otp-hash", clock.Now()))).To(Succeed())

				hash := "$2a$04$newhash"
				updated, err := r.users.Update(ctx, u.ID, auth.UserPatch{PasswordHash: &hash, ClearResetOTP: true})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.PasswordHash).To(Equal(hash))
				Expect(updated.ResetOTP).To(BeNil())
			})
		})
	})

	Describe("sessions", func() {
		var u *auth.User

		BeforeEach(func() {
			u = newUser("frank@example.com", false, clock.Now())
			Expect(r.users.Create(ctx, u)).To(Succeed())
		})

		It("creates a session that resolves by token", func() {
			s, err := r.sessions.Create(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ID).To(HaveLen(auth.SessionTokenBytes * 2))
			Expect(s.ExpiresAt.Sub(s.CreatedAt)).To(Equal(auth.SessionTTL))

			got, err := r.sessions.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.UserID).To(Equal(u.ID))
			Expect(got.ExpiresAt).To(BeTemporally("~", s.ExpiresAt, time.Millisecond))
		})

		It("expires sessions after the TTL and forgets them", func() {
			s, err := r.sessions.Create(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(auth.SessionTTL - time.Minute)
			_, err = r.sessions.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(2 * time.Minute)
			_, err = r.sessions.Get(ctx, s.ID)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			Expect(errutil.Code(err)).To(Equal(auth.CodeSessionNotFound))

			// Still gone even if the clock were wound back.
			clock.Advance(-time.Hour)
			_, err = r.sessions.Get(ctx, s.ID)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("deletes sessions idempotently", func() {
			s, err := r.sessions.Create(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(r.sessions.Delete(ctx, s.ID)).To(Succeed())
			Expect(r.sessions.Delete(ctx, s.ID)).To(Succeed())
			Expect(r.sessions.Delete(ctx, "never-issued")).To(Succeed())

			_, err = r.sessions.Get(ctx, s.ID)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("keeps concurrent sessions for one user independent", func() {
			a, err := r.sessions.Create(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			b, err := r.sessions.Create(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.ID).NotTo(Equal(b.ID))

			Expect(r.sessions.Delete(ctx, a.ID)).To(Succeed())
			_, err = r.sessions.Get(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})
}
