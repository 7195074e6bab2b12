// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package filestore_test

import (
	"context"
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

var _ = Describe("SessionRepository", func() {
	var (
		ctx   context.Context
		dir   string
		clock *authtest.Clock
		repo  *filestore.SessionRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "filestore-sessions-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		clock = authtest.NewClock(start)
		store, err := filestore.Open(dir, filestore.WithClock(clock.Now))
		Expect(err).NotTo(HaveOccurred())
		repo = store.Sessions()
	})

	It("creates sessions that expire seven days out", func() {
		userID := ulid.Make()
		s, err := repo.Create(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.UserID).To(Equal(userID))
		Expect(s.ExpiresAt).To(Equal(start.Add(auth.SessionTTL)))

		got, err := repo.Get(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UserID).To(Equal(userID))
		Expect(got.ID).To(Equal(s.ID))
	})

	It("never writes the bearer token to disk", func() {
		s, err := repo.Create(ctx, ulid.Make())
		Expect(err).NotTo(HaveOccurred())

		raw, err := os.ReadFile(filepath.Join(dir, filestore.SessionsFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring(s.ID))
		Expect(string(raw)).To(ContainSubstring(auth.HashSessionToken(s.ID)))
	})

	It("is still valid exactly at expiresAt", func() {
		s, err := repo.Create(ctx, ulid.Make())
		Expect(err).NotTo(HaveOccurred())

		clock.Set(s.ExpiresAt)
		_, err = repo.Get(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("deletes expired sessions on lookup and keeps reporting not found", func() {
		s, err := repo.Create(ctx, ulid.Make())
		Expect(err).NotTo(HaveOccurred())
		other, err := repo.Create(ctx, ulid.Make())
		Expect(err).NotTo(HaveOccurred())

		clock.Advance(auth.SessionTTL + time.Second)

		_, err = repo.Get(ctx, s.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = repo.Get(ctx, s.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))

		raw, err := os.ReadFile(filepath.Join(dir, filestore.SessionsFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring(auth.HashSessionToken(s.ID)))
		Expect(string(raw)).To(ContainSubstring(auth.HashSessionToken(other.ID)),
			"only the looked-up session is swept")
	})

	It("reports unknown tokens as not found", func() {
		_, err := repo.Get(ctx, "does-not-exist")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("deletes idempotently", func() {
		s, err := repo.Create(ctx, ulid.Make())
		Expect(err).NotTo(HaveOccurred())

		Expect(repo.Delete(ctx, s.ID)).To(Succeed())
		Expect(repo.Delete(ctx, s.ID)).To(Succeed())
		Expect(repo.Delete(ctx, "never-existed")).To(Succeed())

		_, err = repo.Get(ctx, s.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("honors a cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.Create(cctx, ulid.Make())
		Expect(err).To(MatchError(context.Canceled))
	})
})
