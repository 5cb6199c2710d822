package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campusnotes/campusnotes-cli/internal/api"
)

type RegisterCmd struct {
	Username   string `arg:"" help:"Username for the new account"`
	Email      string `help:"Email address" required:""`
	Password   string `help:"Password" env:"CAMPUSNOTES_PASSWORD" required:""`
	FirstName  string `help:"First name"`
	LastName   string `help:"Last name"`
	StudentID  string `help:"Student ID"`
	Department string `help:"Department"`
}

func (r *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}

	user, err := e.session.Register(ctx, api.RegisterRequest{
		Username:   r.Username,
		Password:   r.Password,
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		StudentID:  r.StudentID,
		Department: r.Department,
	})
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			var sb strings.Builder
			sb.WriteString("registration failed:\n")
			for field, msgs := range apiErr.Fields {
				fmt.Fprintf(&sb, "  %s: %s\n", field, strings.Join(msgs, "; "))
			}
			return errors.New(strings.TrimRight(sb.String(), "\n"))
		}
		return err
	}

	fmt.Printf("Account %s created. Log in with: campusnotes login %s\n", user.Username, user.Username)

	return nil
}
