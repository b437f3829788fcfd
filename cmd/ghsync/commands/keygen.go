package commands

import (
	"fmt"

	"github.com/mscno/ghsync/pkg/tokenbox"
)

type KeygenCmd struct{}

func (c *KeygenCmd) Run(ctx *cliCtx) error {
	key, err := tokenbox.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Token Key:\n%s\n", key)
	return nil
}
