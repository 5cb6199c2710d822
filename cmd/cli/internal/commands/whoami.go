package commands

import (
	"context"
	"fmt"
)

type WhoamiCmd struct {
	Refresh bool `help:"Re-fetch the profile from the server" default:"true"`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	if w.Refresh {
		if err := e.session.FetchUserProfile(ctx); err != nil {
			return err
		}
	}

	user := e.session.User()
	fmt.Printf("%s (%s)\n", user.DisplayName(), user.Username)
	if user.Email != "" {
		fmt.Printf("  Email:      %s\n", user.Email)
	}
	if user.StudentID != "" {
		fmt.Printf("  Student ID: %s\n", user.StudentID)
	}
	if user.Department != "" {
		fmt.Printf("  Department: %s\n", user.Department)
	}

	return nil
}
