package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/campusnotes/campusnotes-cli/cmd/cli/internal/commands"
	"github.com/joho/godotenv"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Log in and store the session"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Log out and clear the stored session"`
		Register commands.RegisterCmd `cmd:"" help:"Create a new account"`
		Whoami   commands.WhoamiCmd   `cmd:"" help:"Show the current user profile"`
		Watch    commands.WatchCmd    `cmd:"" help:"Stream notifications"`
		Notes    commands.NotesCmd    `cmd:"" help:"Browse, upload, and rate notes"`
		Faculty  commands.FacultyCmd  `cmd:"" help:"Show the faculty directory"`
		Config   string               `help:"Config file path." type:"path"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Config: cli.Config, Version: version})
	cmd.FatalIfErrorf(err)
}
