package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
)

// Action is a booking lifecycle transition exposed by the API.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionQuote    Action = "quote"
	ActionOnTheWay Action = "on-the-way"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAccept, ActionReject, ActionQuote, ActionOnTheWay, ActionStart, ActionComplete:
		return true
	}
	return false
}

type createMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type uploadResponse struct {
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl"`
}

func bookingPath(bookingID string, parts ...string) string {
	p := "bookings/" + url.PathEscape(bookingID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) FetchBooking(ctx context.Context, bookingID string) (domain.Snapshot, error) {
	if bookingID == "" {
		return nil, apperr.NewValidation("bookingId: required")
	}

	var res domain.Snapshot
	if err := c.Get(ctx, bookingPath(bookingID), &res); err != nil {
		return nil, err
	}
	return res, nil
}

// FetchMessages returns the booking's history. The endpoint answers either a
// bare array or {"messages": [...]}.
func (c *Client) FetchMessages(ctx context.Context, bookingID string) ([]domain.Message, error) {
	if bookingID == "" {
		return nil, apperr.NewValidation("bookingId: required")
	}

	var raw json.RawMessage
	if err := c.Get(ctx, bookingPath(bookingID, "messages"), &raw); err != nil {
		return nil, err
	}

	var list []domain.Message
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Messages []domain.Message `json:"messages"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, apperr.Wrap(apperr.Generic, fmt.Errorf("decode messages: %w", err), "")
		}
		list = wrapped.Messages
	}

	for i := range list {
		if list[i].BookingID == "" {
			list[i].BookingID = bookingID
		}
	}
	return list, nil
}

func (c *Client) PostMessage(ctx context.Context, bookingID, content string, typ domain.MessageType) (*domain.Message, error) {
	draft, err := domain.NewMessage(bookingID, content, typ)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, err.Error())
	}

	var msg domain.Message
	req := createMessageRequest{Content: draft.Content, Type: string(draft.Type)}
	if err := c.Post(ctx, bookingPath(bookingID, "messages"), req, &msg); err != nil {
		return nil, err
	}
	if msg.BookingID == "" {
		msg.BookingID = bookingID
	}
	return &msg, nil
}

// MarkRead is the REST twin of the mark-read socket operation.
func (c *Client) MarkRead(ctx context.Context, bookingID, messageID string) error {
	return c.Put(ctx, bookingPath(bookingID, "messages", url.PathEscape(messageID), "read"), struct{}{}, nil)
}

// UploadImage sends a multipart image and returns the hosted URL.
func (c *Client) UploadImage(ctx context.Context, bookingID, filename string, r io.Reader) (string, error) {
	if bookingID == "" {
		return "", apperr.NewValidation("bookingId: required")
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("image", filepath.Base(filename))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, bookingPath(bookingID, "messages", "upload"), pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var res uploadResponse
	if err := c.do(req, &res); err != nil {
		pr.Close()
		return "", err
	}

	if res.URL == "" {
		res.URL = res.ImageURL
	}
	if res.URL == "" {
		return "", apperr.New(apperr.Generic, "upload returned no url")
	}
	return res.URL, nil
}

// Transition performs a lifecycle action and returns the updated booking.
// body may be nil; quote expects {"amount": ...}.
func (c *Client) Transition(ctx context.Context, bookingID string, action Action, body any) (domain.Snapshot, error) {
	if !action.Valid() {
		return nil, apperr.NewValidation(fmt.Sprintf("action: unknown %q", action))
	}
	if body == nil {
		body = struct{}{}
	}

	var res domain.Snapshot
	if err := c.Post(ctx, bookingPath(bookingID, string(action)), body, &res); err != nil {
		return nil, err
	}
	return res, nil
}
