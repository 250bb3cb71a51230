// ABOUTME: Request body parsing for JSON and form-encoded submissions
// ABOUTME: Each endpoint accepts either encoding with the same field names

package api

import (
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxExpiresIn is the largest expires_in whose duration fits in a time.Duration.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	DeviceName string   `json:"device_name"`
	Abilities  []string `json:"abilities"`
	ExpiresIn  int64    `json:"expires_in"` // seconds, 0 uses the configured default
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}

// decodeJSON decodes a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseForm parses a bounded form body.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form body: %w", err)
	}
	return nil
}

func parseLoginRequest(w http.ResponseWriter, r *http.Request) (*loginRequest, error) {
	var req loginRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
	} else {
		if err := parseForm(w, r); err != nil {
			return nil, err
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	}
	req.Email = strings.TrimSpace(req.Email)
	return &req, nil
}

func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*tokenRequest, error) {
	var req tokenRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
	} else {
		if err := parseForm(w, r); err != nil {
			return nil, err
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
		req.DeviceName = r.PostFormValue("device_name")
		req.Abilities = append(r.PostForm["abilities"], r.PostForm["abilities[]"]...)
		if raw := r.PostFormValue("expires_in"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expires_in must be an integer number of seconds")
			}
			req.ExpiresIn = n
		}
	}
	req.Email = strings.TrimSpace(req.Email)
	req.DeviceName = strings.TrimSpace(req.DeviceName)
	return &req, nil
}

func (req *tokenRequest) validate() fieldErrors {
	errs := fieldErrors{}
	if req.Email == "" {
		errs["email"] = "required"
	}
	if req.Password == "" {
		errs["password"] = "required"
	}
	if req.DeviceName == "" {
		errs["device_name"] = "required"
	} else if len(req.DeviceName) > 255 {
		errs["device_name"] = "must be at most 255 characters"
	}
	if req.ExpiresIn < 0 {
		errs["expires_in"] = "must not be negative"
	} else if req.ExpiresIn > maxExpiresIn {
		errs["expires_in"] = fmt.Sprintf("must be at most %d seconds", maxExpiresIn)
	}
	for _, ability := range req.Abilities {
		if strings.TrimSpace(ability) == "" {
			errs["abilities"] = "must not contain empty entries"
			break
		}
	}
	return errs
}

func parseCreateUserRequest(w http.ResponseWriter, r *http.Request) (*createUserRequest, error) {
	var req createUserRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
	} else {
		if err := parseForm(w, r); err != nil {
			return nil, err
		}
		req.Name = r.PostFormValue("name")
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	return &req, nil
}
