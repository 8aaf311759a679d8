package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"olament/pkg/api"
)

var ErrEmptyPassword = errors.New("profile: password must not be empty")

// Profile is the authenticated user's own record.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Update carries the mutable profile fields; empty fields are left alone
// server-side.
type Update struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Client manages the /users profile endpoints.
type Client struct {
	api *api.Client
}

func NewClient(client *api.Client) *Client {
	return &Client{api: client}
}

// Get fetches the current profile.
func (c *Client) Get(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.api.Get(ctx, "/users/profile", nil, &p)
	return p, err
}

// Update applies the given changes and returns the server's copy.
func (c *Client) Update(ctx context.Context, u Update) (Profile, error) {
	var p Profile
	err := c.api.Put(ctx, "/users/profile", u, &p)
	return p, err
}

// UpdateAvatar uploads a new avatar image as multipart form data.
func (c *Client) UpdateAvatar(ctx context.Context, filename string, image io.Reader) (Profile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("avatar", filename)
	if err != nil {
		return Profile{}, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return Profile{}, fmt.Errorf("profile: read avatar: %w", err)
	}
	if err := w.Close(); err != nil {
		return Profile{}, err
	}

	var p Profile
	err = c.api.PutMultipart(ctx, "/users/profile/avatar", &buf, w.FormDataContentType(), &p)
	return p, err
}

// ChangePassword rotates the account password. Empty passwords are rejected
// locally and never reach the network.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return ErrEmptyPassword
	}
	body := struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}{CurrentPassword: current, NewPassword: next}
	return c.api.Put(ctx, "/users/change-password", body, nil)
}
