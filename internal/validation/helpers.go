// Package validation extracts the requester identity from HTTP requests and
// checks decoded request bodies.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

var ErrMissingIdentity = errors.New("user_id not found in request")

// Identity is the opaque requester supplied by the transport.
type Identity struct {
	UserID      string
	DisplayName string
}

// ExtractIdentity reads the requester from headers, falling back to a
// user_id field in a JSON body. The body is restored for the handler.
func ExtractIdentity(r *http.Request) (Identity, error) {
	id := Identity{
		UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
		DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}
	if id.UserID != "" {
		return id, nil
	}
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return id, ErrMissingIdentity
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return id, fmt.Errorf("failed to read body: %w", err)
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	var reqMap map[string]any
	if err := json.Unmarshal(body, &reqMap); err == nil {
		switch v := reqMap["user_id"].(type) {
		case string:
			id.UserID = strings.TrimSpace(v)
		case float64:
			id.UserID = fmt.Sprintf("%.0f", v)
		}
		if name, ok := reqMap["user_name"].(string); ok && id.DisplayName == "" {
			id.DisplayName = name
		}
	}
	if id.UserID == "" {
		return id, ErrMissingIdentity
	}
	return id, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Struct validates v by its `validate` tags and returns one readable error.
func Struct(v any) error {
	err := instance().Struct(v)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("поле %s обязательно", fe.Field())
	case "max":
		return fmt.Sprintf("поле %s длиннее %s символов", fe.Field(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("поле %s должно быть больше %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("поле %s не прошло проверку %s", fe.Field(), fe.Tag())
}
