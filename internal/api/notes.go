package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	notesPath        = "/api/notes/"
	facultyPath      = "/api/faculty/"
	noteRequestsPath = "/api/note-requests/"
)

// NoteFilter narrows a note listing. Zero values are omitted.
type NoteFilter struct {
	Query      string
	Course     string
	Department string
	Bookmarked bool
	Page       int
}

func (f NoteFilter) encode() string {
	q := url.Values{}
	if f.Query != "" {
		q.Set("search", f.Query)
	}
	if f.Course != "" {
		q.Set("course", f.Course)
	}
	if f.Department != "" {
		q.Set("department", f.Department)
	}
	if f.Bookmarked {
		q.Set("bookmarked", "true")
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// NoteUpload describes a note to upload. Content is read fully into the
// multipart body.
type NoteUpload struct {
	Title       string
	Description string
	Course      string
	Department  string
	Filename    string
	Content     io.Reader
}

// ListNotes returns notes matching the filter.
func (c *Client) ListNotes(ctx context.Context, filter NoteFilter) ([]models.Note, error) {
	var notes []models.Note
	if err := c.doJSON(ctx, c.authed, http.MethodGet, notesPath+filter.encode(), nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// GetNote returns a single note by id.
func (c *Client) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	var note models.Note
	if err := c.doJSON(ctx, c.authed, http.MethodGet, notePath(id), nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UploadNote uploads a new note as a multipart form.
func (c *Client) UploadNote(ctx context.Context, upload NoteUpload) (*models.Note, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       upload.Title,
		"description": upload.Description,
		"course":      upload.Course,
		"department":  upload.Department,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := form.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	part, err := form.CreateFormFile("file", upload.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	// bytes.Reader gives the request a rewindable body, so the transport
	// can replay the upload after a token refresh.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(notesPath), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var note models.Note
	if err := c.do(c.authed, req, &note); err != nil {
		return nil, err
	}

	log.Info().Int64("noteID", note.ID).Str("title", note.Title).Msg("note uploaded")

	return &note, nil
}

// RateNote submits a 1-5 star rating for a note.
func (c *Client) RateNote(ctx context.Context, id int64, stars int) (*models.Note, error) {
	if stars < 1 || stars > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d", stars)
	}

	body := map[string]int{"stars": stars}

	var note models.Note
	if err := c.doJSON(ctx, c.authed, http.MethodPost, notePath(id)+"rate/", body, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// BookmarkNote toggles the bookmark flag on a note and returns its new state.
func (c *Client) BookmarkNote(ctx context.Context, id int64) (bool, error) {
	var result struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := c.doJSON(ctx, c.authed, http.MethodPost, notePath(id)+"bookmark/", nil, &result); err != nil {
		return false, err
	}
	return result.Bookmarked, nil
}

// DownloadNote streams a note's file into w and returns the bytes written.
func (c *Client) DownloadNote(ctx context.Context, id int64, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(notePath(id)+"download/"), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return 0, parseError(resp.StatusCode, data)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download interrupted: %w", err)
	}

	log.Debug().Int64("noteID", id).Int64("bytes", n).Msg("note downloaded")

	return n, nil
}

// ListFaculty returns the public faculty directory. Responses are served
// through the caching client, honouring server cache headers.
func (c *Client) ListFaculty(ctx context.Context) ([]models.FacultyMember, error) {
	var members []models.FacultyMember
	if err := c.doJSON(ctx, c.public, http.MethodGet, facultyPath, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// CreateNoteRequest files a request for notes that don't exist yet.
func (c *Client) CreateNoteRequest(ctx context.Context, course, topic, details string) (*models.NoteRequest, error) {
	body := map[string]string{
		"course":  course,
		"topic":   topic,
		"details": details,
	}

	var req models.NoteRequest
	if err := c.doJSON(ctx, c.authed, http.MethodPost, noteRequestsPath, body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func notePath(id int64) string {
	return fmt.Sprintf("%s%d/", notesPath, id)
}
