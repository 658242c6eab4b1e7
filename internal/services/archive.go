package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/shared"
)

const defaultArchiveBaseURL = "https://archive.org"

// listing fields requested from advancedsearch
var listFields = []string{"identifier", "title", "date", "publicdate", "creator", "band", "venue", "mediatype"}

// ArchiveService talks to the Internet Archive metadata and search APIs.
type ArchiveService struct {
	baseURL    string
	accessKey  string
	secretKey  string
	httpClient *http.Client
}

// NewArchiveService creates an archive client; an empty baseURL uses https://archive.org.
func NewArchiveService(baseURL, accessKey, secretKey string) *ArchiveService {
	if baseURL == "" {
		baseURL = defaultArchiveBaseURL
	}

	return &ArchiveService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accessKey:  accessKey,
		secretKey:  secretKey,
		httpClient: http.DefaultClient,
	}
}

// WithHTTPClient swaps the underlying client.
func (a *ArchiveService) WithHTTPClient(c *http.Client) *ArchiveService {
	if c != nil {
		a.httpClient = c
	}
	return a
}

// Name returns the service name.
func (a *ArchiveService) Name() string {
	return "Internet Archive"
}

func (a *ArchiveService) metadataURL(identifier string) string {
	return a.baseURL + "/metadata/" + url.PathEscape(identifier)
}

// doRequest sends req and decodes a 2xx JSON body into result.
func (a *ArchiveService) doRequest(req *http.Request, result any) error {
	if a.accessKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", a.accessKey, a.secretKey))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("archive", resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ReadMetadata returns the metadata map of identifier.
//
// The archive answers an unknown identifier with an empty object, reported as [shared.ErrItemNotFound].
func (a *ArchiveService) ReadMetadata(ctx context.Context, identifier string) (models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.metadataURL(identifier), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var body struct {
		Metadata models.Snapshot `json:"metadata"`
	}
	if err := a.doRequest(req, &body); err != nil {
		return nil, err
	}
	if body.Metadata == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, identifier)
	}
	return body.Metadata, nil
}

// WriteMetadata posts patch to identifier's metadata target.
//
// Refusals from the archive come back as a result with Success false, not as an error. Only
// throttling and server failures are returned as [*StatusError].
func (a *ArchiveService) WriteMetadata(ctx context.Context, identifier string, patch []models.PatchOp) (*models.WriteResult, error) {
	if a.accessKey == "" || a.secretKey == "" {
		return nil, fmt.Errorf("%w: archive access and secret keys are required for writes", shared.ErrMissingCredentials)
	}

	encoded, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	form := url.Values{}
	form.Set("-target", "metadata")
	form.Set("-patch", string(encoded))
	form.Set("access", a.accessKey)
	form.Set("secret", a.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.metadataURL(identifier), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", a.accessKey, a.secretKey))
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, statusError("archive", resp)
	}

	var result models.WriteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &StatusError{Service: "archive", Code: resp.StatusCode, Detail: "undecodable write response"}
	}
	if !result.Success && result.Error == "" && resp.StatusCode >= 300 {
		result.Error = http.StatusText(resp.StatusCode)
	}
	return &result, nil
}

// ListItems returns up to rows items uploaded by email, via advancedsearch.
func (a *ArchiveService) ListItems(ctx context.Context, email string, rows int) ([]models.Item, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: uploader email", shared.ErrMissingArgument)
	}
	if rows <= 0 {
		rows = 1000
	}

	q := url.Values{}
	q.Set("q", "uploader:"+email)
	for _, f := range listFields {
		q.Add("fl[]", f)
	}
	q.Set("rows", strconv.Itoa(rows))
	q.Set("page", "1")
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/advancedsearch.php?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var body struct {
		Response struct {
			NumFound int               `json:"numFound"`
			Docs     []models.Snapshot `json:"docs"`
		} `json:"response"`
	}
	if err := a.doRequest(req, &body); err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(body.Response.Docs))
	for _, doc := range body.Response.Docs {
		item := models.Item{}
		item.Identifier, _ = doc.Value("identifier")
		item.Title, _ = doc.Value("title")
		item.Date, _ = doc.Value("date")
		item.Creator, _ = doc.Value("creator")
		item.Band, _ = doc.Value("band")
		item.PublicDate, _ = doc.Value("publicdate")
		item.Venue, _ = doc.Value("venue")
		item.Mediatype, _ = doc.Value("mediatype")
		if item.Identifier != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
