package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campusnotes/campusnotes-cli/internal/api"
)

type NotesCmd struct {
	List     NotesListCmd     `cmd:"" help:"List notes"`
	Get      NotesGetCmd      `cmd:"" help:"Show one note"`
	Upload   NotesUploadCmd   `cmd:"" help:"Upload a note file"`
	Download NotesDownloadCmd `cmd:"" help:"Download a note file"`
	Rate     NotesRateCmd     `cmd:"" help:"Rate a note"`
	Bookmark NotesBookmarkCmd `cmd:"" help:"Toggle a bookmark"`
	Request  NotesRequestCmd  `cmd:"" help:"Request notes that don't exist yet"`
}

type NotesListCmd struct {
	Search     string `help:"Search query"`
	Course     string `help:"Filter by course"`
	Department string `help:"Filter by department"`
	Bookmarked bool   `help:"Only bookmarked notes"`
	Page       int    `help:"Page number"`
}

func (n *NotesListCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	notes, err := e.client.ListNotes(ctx, api.NoteFilter{
		Query:      n.Search,
		Course:     n.Course,
		Department: n.Department,
		Bookmarked: n.Bookmarked,
		Page:       n.Page,
	})
	if err != nil {
		return err
	}

	if len(notes) == 0 {
		fmt.Println("No notes found")
		return nil
	}

	for _, note := range notes {
		marker := " "
		if note.Bookmarked {
			marker = "*"
		}
		fmt.Printf("%s %6d  %-30s  %-10s  %.1f (%d)\n",
			marker, note.ID, note.Title, note.Course, note.AverageRating, note.RatingCount)
	}

	return nil
}

type NotesGetCmd struct {
	ID int64 `arg:"" help:"Note ID"`
}

func (n *NotesGetCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	note, err := e.client.GetNote(ctx, n.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", note.Title)
	fmt.Printf("  Course:     %s (%s)\n", note.Course, note.Department)
	fmt.Printf("  Uploader:   %s\n", note.Uploader.DisplayName())
	fmt.Printf("  Rating:     %.1f from %d ratings\n", note.AverageRating, note.RatingCount)
	fmt.Printf("  Downloads:  %d\n", note.Downloads)
	fmt.Printf("  Uploaded:   %s\n", note.CreatedAt.Format("2006-01-02"))
	if note.Description != "" {
		fmt.Printf("  %s\n", note.Description)
	}

	return nil
}

type NotesUploadCmd struct {
	File        string `arg:"" help:"Path to the note file" type:"existingfile"`
	Title       string `help:"Note title" required:""`
	Course      string `help:"Course code" required:""`
	Department  string `help:"Department"`
	Description string `help:"Description"`
}

func (n *NotesUploadCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	f, err := os.Open(n.File)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	note, err := e.client.UploadNote(ctx, api.NoteUpload{
		Title:       n.Title,
		Description: n.Description,
		Course:      n.Course,
		Department:  n.Department,
		Filename:    filepath.Base(n.File),
		Content:     f,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded note %d: %s\n", note.ID, note.Title)

	return nil
}

type NotesDownloadCmd struct {
	ID     int64  `arg:"" help:"Note ID"`
	Output string `help:"Output path (defaults to note-<id>)" short:"o"`
}

func (n *NotesDownloadCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	out := n.Output
	if out == "" {
		out = fmt.Sprintf("note-%d", n.ID)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	written, err := e.client.DownloadNote(ctx, n.ID, f)
	if err != nil {
		os.Remove(out)
		return err
	}

	fmt.Printf("Downloaded %d bytes to %s\n", written, out)

	return nil
}

type NotesRateCmd struct {
	ID    int64 `arg:"" help:"Note ID"`
	Stars int   `arg:"" help:"Rating from 1 to 5"`
}

func (n *NotesRateCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	note, err := e.client.RateNote(ctx, n.ID, n.Stars)
	if err != nil {
		return err
	}

	fmt.Printf("Rated note %d: now %.1f from %d ratings\n", note.ID, note.AverageRating, note.RatingCount)

	return nil
}

type NotesBookmarkCmd struct {
	ID int64 `arg:"" help:"Note ID"`
}

func (n *NotesBookmarkCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	bookmarked, err := e.client.BookmarkNote(ctx, n.ID)
	if err != nil {
		return err
	}

	if bookmarked {
		fmt.Printf("Bookmarked note %d\n", n.ID)
	} else {
		fmt.Printf("Removed bookmark from note %d\n", n.ID)
	}

	return nil
}

type NotesRequestCmd struct {
	Course  string `arg:"" help:"Course code"`
	Topic   string `arg:"" help:"Topic the notes should cover"`
	Details string `help:"Additional details"`
}

func (n *NotesRequestCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	req, err := e.client.CreateNoteRequest(ctx, n.Course, n.Topic, n.Details)
	if err != nil {
		return err
	}

	fmt.Printf("Filed note request %d (%s)\n", req.ID, req.Status)

	return nil
}
