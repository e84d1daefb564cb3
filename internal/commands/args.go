package commands

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"
)

// ideaIDArg parses the positional argument at index n as an idea ID.
func ideaIDArg(c *cli.Command, n int) (int64, error) {
	arg := c.Args().Get(n)
	if arg == "" {
		return 0, fmt.Errorf("missing idea ID argument")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid idea ID %q: must be a number", arg)
	}
	return id, nil
}
