package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/shared"
)

// MetadataReader fetches the current metadata of an item.
type MetadataReader interface {
	ReadMetadata(ctx context.Context, identifier string) (models.Snapshot, error)
}

// MetadataWriter applies a patch to an item's metadata.
type MetadataWriter interface {
	WriteMetadata(ctx context.Context, identifier string, patch []models.PatchOp) (*models.WriteResult, error)
}

// ItemLister lists the items uploaded by an account.
type ItemLister interface {
	ListItems(ctx context.Context, email string, rows int) ([]models.Item, error)
}

// Archive is everything the engine needs from the archive.
type Archive interface {
	MetadataReader
	MetadataWriter
	ItemLister
}

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Detail  string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s API error: status %d", e.Service, e.Code)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case http.StatusNotFound:
		return shared.ErrItemNotFound
	case http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// statusError reads the error detail from a failed response body.
//
// The archive answers with {"error": ...}; some front ends use {"detail": ...} or plain text.
func statusError(service string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	detail := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		detail = errResp.Error
		if detail == "" {
			detail = errResp.Detail
		}
	} else if len(body) > 0 && len(body) < 200 {
		detail = string(body)
	}
	return &StatusError{Service: service, Code: resp.StatusCode, Detail: detail}
}
