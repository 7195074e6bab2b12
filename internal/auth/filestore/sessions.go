// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package filestore

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// SessionRepository implements auth.SessionRepository on sessions.json.
type SessionRepository struct {
	store *Store
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)

type sessionsDocument struct {
	header
	Sessions []sessionRecord `json:"sessions"`
}

// Create issues and stores a new session.
func (r *SessionRepository) Create(ctx context.Context, userID ulid.ULID) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	session, err := auth.NewSession(userID, r.store.now())
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	doc.Sessions = append(doc.Sessions, sessionRecord{
		TokenHash: auth.HashSessionToken(session.ID),
		UserID:    userID.String(),
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err := r.save(doc); err != nil {
		return nil, err
	}
	return session, nil
}

// Get retrieves a live session. Expired sessions are removed on sight.
func (r *SessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	hash := auth.HashSessionToken(id)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range doc.Sessions {
		if doc.Sessions[i].TokenHash != hash {
			continue
		}
		session, err := doc.Sessions[i].toSession(id)
		if err != nil {
			return nil, err
		}
		if session.IsExpiredAt(r.store.now()) {
			doc.Sessions = append(doc.Sessions[:i], doc.Sessions[i+1:]...)
			if err := r.save(doc); err != nil {
				return nil, err
			}
			break
		}
		return session, nil
	}

	return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
}

// Delete removes a session if present.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	hash := auth.HashSessionToken(id)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	kept := doc.Sessions[:0]
	for _, rec := range doc.Sessions {
		if rec.TokenHash != hash {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(doc.Sessions) {
		return nil
	}
	doc.Sessions = kept
	return r.save(doc)
}

func (r *SessionRepository) load() (*sessionsDocument, error) {
	doc := &sessionsDocument{}
	if err := r.store.load(SessionsFile, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *SessionRepository) save(doc *sessionsDocument) error {
	if doc.Sessions == nil {
		doc.Sessions = []sessionRecord{}
	}
	return r.store.save(SessionsFile, &doc.header, doc)
}
