// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package filestore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/auth/authtest"
	"github.com/taskmaster/taskmaster/internal/auth/filestore"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestUser(email string, isGuest bool) *auth.User {
	u, err := auth.NewUser(email, "Test", "hash", isGuest, start)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		dir   string
		clock *authtest.Clock
		store *filestore.Store
		repo  *filestore.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "filestore-users-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		clock = authtest.NewClock(start)
		store, err = filestore.Open(dir, filestore.WithClock(clock.Now))
		Expect(err).NotTo(HaveOccurred())
		repo = store.Users()
	})

	Describe("Create", func() {
		It("persists the user and finds it by id and email", func() {
			u := newTestUser("Alice@X.com", false)
			Expect(repo.Create(ctx, u)).To(Succeed())

			got, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("alice@x.com"))
			Expect(got.PasswordHash).To(Equal("hash"))

			got, err = repo.GetByEmail(ctx, "  ALICE@x.com ")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))
		})

		It("rejects a second regular account with the same email", func() {
			Expect(repo.Create(ctx, newTestUser("alice@x.com", false))).To(Succeed())

			err := repo.Create(ctx, newTestUser("ALICE@x.com", false))
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("lets guests share an email", func() {
			Expect(repo.Create(ctx, newTestUser("guest_00000000@example.com", true))).To(Succeed())
			Expect(repo.Create(ctx, newTestUser("guest_00000000@example.com", true))).To(Succeed())

			users, err := repo.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
		})

		It("lets a regular account take an email a guest holds", func() {
			guest := newTestUser("shared@x.com", true)
			Expect(repo.Create(ctx, guest)).To(Succeed())
			regular := newTestUser("shared@x.com", false)
			Expect(repo.Create(ctx, regular)).To(Succeed())

			got, err := repo.GetByEmail(ctx, "shared@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(regular.ID), "regular accounts win email lookups")
		})
	})

	Describe("GetByID and GetByEmail", func() {
		It("return ErrNotFound for unknown users", func() {
			_, err := repo.GetByID(ctx, ulid.Make())
			Expect(err).To(MatchError(auth.ErrNotFound))

			_, err = repo.GetByEmail(ctx, "nobody@x.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("Update", func() {
		It("merges the patch and refreshes updatedAt", func() {
			u := newTestUser("alice@x.com", false)
			Expect(repo.Create(ctx, u)).To(Succeed())
			clock.Advance(time.Hour)

			name := "Alice Liddell"
			hash := "newhash"
			got, err := repo.Update(ctx, u.ID, auth.UserPatch{Name: &name, PasswordHash: &hash})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Alice Liddell"))
			Expect(got.PasswordHash).To(Equal("newhash"))
			Expect(got.Email).To(Equal("alice@x.com"))
			Expect(got.UpdatedAt).To(Equal(start.Add(time.Hour)))
			Expect(got.CreatedAt).To(Equal(start))

			stored, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Name).To(Equal("Alice Liddell"))
		})

		It("rejects an email change that collides with another user", func() {
			alice := newTestUser("alice@x.com", false)
			bob := newTestUser("bob@x.com", false)
			Expect(repo.Create(ctx, alice)).To(Succeed())
			Expect(repo.Create(ctx, bob)).To(Succeed())

			email := " Alice@x.com"
			_, err := repo.Update(ctx, bob.ID, auth.UserPatch{Email: &email})
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("allows re-saving a user's own email", func() {
			alice := newTestUser("alice@x.com", false)
			Expect(repo.Create(ctx, alice)).To(Succeed())

			email := "ALICE@x.com"
			got, err := repo.Update(ctx, alice.ID, auth.UserPatch{Email: &email})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("alice@x.com"))
		})

		It("returns ErrNotFound for unknown users", func() {
			name := "x"
			_, err := repo.Update(ctx, ulid.Make(), auth.UserPatch{Name: &name})
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("reset state", func() {
		var u *auth.User

		BeforeEach(func() {
			u = newTestUser("alice@x.com", false)
			Expect(repo.Create(ctx, u)).To(Succeed())
		})

		It("round-trips all four fields", func() {
			otp := auth.NewResetOTP("otphash", start)
			Expect(repo.SetResetOTP(ctx, u.ID, otp)).To(Succeed())

			got, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResetOTP).NotTo(BeNil())
			Expect(got.ResetOTP.Hash).To(Equal("otphash"))
			Expect(got.ResetOTP.ExpiresAt).To(Equal(start.Add(auth.ResetCodeExpiry)))
			Expect(got.ResetOTP.Attempts).To(Equal(0))
			Expect(got.ResetOTP.LastSentAt).To(Equal(start))
		})

		It("increments attempts one at a time", func() {
			Expect(repo.SetResetOTP(ctx, u.ID, auth.NewResetOTP("otphash", start))).To(Succeed())

			for want := 1; want <= 3; want++ {
				n, err := repo.IncrementResetAttempts(ctx, u.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(want))
			}

			got, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResetOTP.Attempts).To(Equal(3))
		})

		It("refuses to increment without a reset in flight", func() {
			_, err := repo.IncrementResetAttempts(ctx, u.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("clears all fields with ClearResetOTP", func() {
			Expect(repo.SetResetOTP(ctx, u.ID, auth.NewResetOTP("otphash", start))).To(Succeed())

			got, err := repo.Update(ctx, u.ID, auth.UserPatch{ClearResetOTP: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResetOTP).To(BeNil())

			raw, err := os.ReadFile(filepath.Join(dir, filestore.UsersFile))
			Expect(err).NotTo(HaveOccurred())
			var doc map[string]any
			Expect(json.Unmarshal(raw, &doc)).To(Succeed())
			rec := doc["users"].([]any)[0].(map[string]any)
			Expect(rec["passwordResetOtpHash"]).To(BeNil())
			Expect(rec["passwordResetOtpExpiresAt"]).To(BeNil())
			Expect(rec["passwordResetOtpAttempts"]).To(BeNil())
			Expect(rec["passwordResetOtpLastSentAt"]).To(BeNil())
		})
	})

	Describe("file layout", func() {
		It("bumps version and updatedAt on every rewrite", func() {
			Expect(repo.Create(ctx, newTestUser("a@x.com", false))).To(Succeed())
			clock.Advance(time.Minute)
			Expect(repo.Create(ctx, newTestUser("b@x.com", false))).To(Succeed())

			raw, err := os.ReadFile(filepath.Join(dir, filestore.UsersFile))
			Expect(err).NotTo(HaveOccurred())

			var doc struct {
				Version   int64            `json:"version"`
				UpdatedAt time.Time        `json:"updatedAt"`
				Users     []map[string]any `json:"users"`
			}
			Expect(json.Unmarshal(raw, &doc)).To(Succeed())
			Expect(doc.Version).To(Equal(int64(2)))
			Expect(doc.UpdatedAt).To(Equal(start.Add(time.Minute)))
			Expect(doc.Users).To(HaveLen(2))
		})

		It("leaves no temp files behind", func() {
			Expect(repo.Create(ctx, newTestUser("a@x.com", false))).To(Succeed())

			entries, err := os.ReadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal(filestore.UsersFile))
		})

		It("is shared by a second store on the same directory", func() {
			u := newTestUser("a@x.com", false)
			Expect(repo.Create(ctx, u)).To(Succeed())

			reopened, err := filestore.Open(dir)
			Expect(err).NotTo(HaveOccurred())
			got, err := reopened.Users().GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("a@x.com"))
		})

		It("reports a corrupt document", func() {
			Expect(os.WriteFile(filepath.Join(dir, filestore.UsersFile), []byte("{"), 0o600)).To(Succeed())
			_, err := repo.List(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unexpected end of JSON input"))
		})
	})
})
