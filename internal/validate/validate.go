// Package validate checks request bodies before they reach the store.
package validate

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// emailPattern restricts accounts to the providers the service accepts.
var emailPattern = regexp.MustCompile(`^[\w.+-]+@(gmail|yahoo|hotmail)\.com$`)

// Errors collects every failed rule of one request.
type Errors []string

func (e Errors) Error() string { return strings.Join(e, "; ") }

// Err returns e as an error, or nil when no rule failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e *Errors) check(ok bool, msg string) {
	if !ok {
		*e = append(*e, msg)
	}
}

type Register struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
}

func (r Register) Validate() error {
	var errs Errors
	errs.check(length(r.FirstName) >= 3, "First name must be at least 3 characters")
	errs.check(length(r.FirstName) <= 8, "First name can be at most 8 characters")
	errs.check(length(r.LastName) >= 3, "Last name must be at least 3 characters")
	errs.check(length(r.LastName) <= 8, "Last name can be at most 8 characters")
	errs.check(isEmail(r.Email), "Please include a valid email")
	errs.check(emailPattern.MatchString(r.Email), "Please add a valid email with @gmail, @yahoo, or @hotmail domain")
	errs.check(length(r.Password) >= 8, "Password must be at least 8 characters")
	errs.check(length(r.Username) >= 3, "Username must be at least 3 characters")
	errs.check(length(r.Username) <= 8, "Username can be at most 8 characters")
	return errs.Err()
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (l Login) Validate() error {
	var errs Errors
	errs.check(l.Username != "", "Please include a valid username")
	errs.check(l.Password != "", "Please enter a password")
	return errs.Err()
}

// UpdateDetails is a partial profile update; empty fields are left as is.
type UpdateDetails struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (u UpdateDetails) Validate() error {
	var errs Errors
	errs.check(u.FirstName == "" || length(u.FirstName) >= 3, "First name must be at least 3 characters")
	errs.check(length(u.FirstName) <= 8, "First name can be at most 8 characters")
	errs.check(u.LastName == "" || length(u.LastName) >= 3, "Last name must be at least 3 characters")
	errs.check(length(u.LastName) <= 8, "Last name can be at most 8 characters")
	errs.check(u.Email == "" || (isEmail(u.Email) && emailPattern.MatchString(u.Email)), "Please include a valid email")
	errs.check(u.Username == "" || length(u.Username) >= 3, "Username must be at least 3 characters")
	errs.check(length(u.Username) <= 8, "Username can be at most 8 characters")
	errs.check(u.NewPassword == "" || length(u.NewPassword) >= 6, "New password must be at least 6 characters")
	errs.check((u.OldPassword == "") == (u.NewPassword == ""), "Provide both oldPassword and newPassword to change the password")
	return errs.Err()
}

type Favorite struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Photographer string `json:"photographer"`
	URL          string `json:"url"`
	MediaType    string `json:"media_type"`
	NasaID       string `json:"nasa_id"`
}

func (f Favorite) Validate() error {
	var errs Errors
	errs.check(strings.TrimSpace(f.Title) != "", "Title is required")
	errs.check(strings.TrimSpace(f.Description) != "", "Description is required")
	errs.check(strings.TrimSpace(f.Photographer) != "", "Photographer is required")
	errs.check(strings.TrimSpace(f.URL) != "", "URL is required")
	errs.check(f.URL == "" || isHTTPURL(f.URL), "URL must be an http(s) URL")
	errs.check(strings.TrimSpace(f.MediaType) != "", "Media type is required")
	errs.check(strings.TrimSpace(f.NasaID) != "", "NASA ID is required")
	return errs.Err()
}

func length(s string) int { return utf8.RuneCountInString(strings.TrimSpace(s)) }

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
