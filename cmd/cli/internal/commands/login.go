package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

type LoginCmd struct {
	Username string `arg:"" help:"Username to log in as"`
	Password string `help:"Password (prompted when omitted)" env:"CAMPUSNOTES_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}

	password := l.Password
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	if err := e.session.Login(ctx, l.Username, password); err != nil {
		return err
	}

	user := e.session.User()
	fmt.Printf("Logged in as %s (%s)\n", user.DisplayName(), user.Username)

	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}

	e.session.Logout()
	fmt.Println("Logged out")

	return nil
}
