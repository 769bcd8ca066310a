// Package binder decodes HTTP request payloads into structs using `json`,
// `form` and `query` field tags. Binders are plain functions over
// (*http.Request, any) so handlers can compose them without a framework.
package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidForm          = errors.New("invalid form data")
	ErrInvalidQuery         = errors.New("invalid query parameter")
)

// JSON decodes an application/json body into v. Unknown fields and trailing
// data are rejected.
func JSON(r *http.Request, v any) error {
	if err := checkContentType(r, "application/json"); err != nil {
		return err
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
	}
	return nil
}

// Form decodes an application/x-www-form-urlencoded body into v using
// `form` tags.
func Form(r *http.Request, v any) error {
	if err := checkContentType(r, "application/x-www-form-urlencoded"); err != nil {
		return err
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return bindToStruct(v, "form", r.Form, ErrInvalidForm)
}

// Query decodes URL query parameters into v using `query` tags.
func Query(r *http.Request, v any) error {
	return bindToStruct(v, "query", r.URL.Query(), ErrInvalidQuery)
}

func checkContentType(r *http.Request, want string) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return fmt.Errorf("%w: expected %s", ErrMissingContentType, want)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != want {
		return fmt.Errorf("%w: got %s, expected %s", ErrUnsupportedMediaType, ct, want)
	}
	return nil
}
