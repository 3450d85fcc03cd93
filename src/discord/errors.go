package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/wumpus-archiver/archiver/src/remote"
)

// mapError attaches the matching remote sentinel to REST errors so engines
// can tell permission problems from outages.
func mapError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}

	var sentinel error
	switch restErr.Response.StatusCode {
	case http.StatusUnauthorized:
		sentinel = remote.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = remote.ErrForbidden
	case http.StatusNotFound:
		sentinel = remote.ErrNotFound
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
