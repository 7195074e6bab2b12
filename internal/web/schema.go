// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// CodeBadRequest marks a body that failed to parse or validate.
const CodeBadRequest = "WEB_BAD_REQUEST"

type credentialsRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1"`
	Name     string `json:"name,omitempty"`
}

type profileRequest struct {
	Email    *string `json:"email,omitempty" jsonschema:"minLength=1"`
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty" jsonschema:"minLength=1"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" jsonschema:"minLength=1"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1"`
	OTP      string `json:"otp" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

type oauthCompleteRequest struct {
	AccessToken string `json:"access_token" jsonschema:"minLength=1"`
}

type schemaEntry struct {
	schema  *jschema.Schema
	message string
}

type schemaSet struct {
	byType map[reflect.Type]schemaEntry
}

// requestSchemas lists each request body with the message shown when it is rejected.
var requestSchemas = []struct {
	v       any
	message string
}{
	{&credentialsRequest{}, "Email and password are required"},
	{&profileRequest{}, "Invalid profile update"},
	{&forgotPasswordRequest{}, "Email is required"},
	{&resetPasswordRequest{}, "Email, OTP and new password are required"},
	{&oauthCompleteRequest{}, "Missing access token"},
}

func compileSchemas() (*schemaSet, error) {
	set := &schemaSet{byType: make(map[reflect.Type]schemaEntry, len(requestSchemas))}
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}

	for _, rs := range requestSchemas {
		t := reflect.TypeOf(rs.v).Elem()
		sch, err := compileSchema(&r, rs.v, t.Name())
		if err != nil {
			return nil, err
		}
		set.byType[t] = schemaEntry{schema: sch, message: rs.message}
	}
	return set, nil
}

func compileSchema(r *jsonschema.Reflector, v any, name string) (*jschema.Schema, error) {
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, oops.Code("WEB_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("WEB_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}

	url := name + ".json"
	c := jschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("WEB_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("WEB_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// decodeBody validates the body against dst's schema, then decodes into dst.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	entry, ok := s.schemas.byType[reflect.TypeOf(dst).Elem()]
	if !ok {
		return oops.Code("WEB_SCHEMA_MISSING").Errorf("no schema for %T", dst)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return oops.Code(CodeBadRequest).With("reason", "read body").Public(entry.message).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(CodeBadRequest).With("reason", "malformed json").Public(entry.message).Wrap(err)
	}
	if err := entry.schema.Validate(doc); err != nil {
		return oops.Code(CodeBadRequest).With("reason", "schema").Public(entry.message).Wrap(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(CodeBadRequest).With("reason", "decode").Public(entry.message).Wrap(err)
	}
	return nil
}
