package commands

import (
	"context"
	"fmt"
)

type FacultyCmd struct {
	Department string `help:"Filter by department"`
}

func (f *FacultyCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}

	members, err := e.client.ListFaculty(ctx)
	if err != nil {
		return err
	}

	for _, m := range members {
		if f.Department != "" && m.Department != f.Department {
			continue
		}
		fmt.Printf("%-25s  %-20s  %-15s  %s\n", m.Name, m.Designation, m.Department, m.Email)
	}

	return nil
}
