package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/bridgebot/internal/relay"
)

// ErrForbidden marks REST calls rejected for missing permissions.
var ErrForbidden = errors.New("missing permissions")

// JSON error codes returned by the REST API.
const (
	codeUnknownChannel = 10003
	codeUnknownWebhook = 10015
	codeMissingAccess  = 50001
	codeMissingPerms   = 50013
)

func restError(err error) (status, code int, ok bool) {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return 0, 0, false
	}
	if rest.Response != nil {
		status = rest.Response.StatusCode
	}
	if rest.Message != nil {
		code = rest.Message.Code
	}
	return status, code, true
}

func isNotFound(err error) bool {
	status, code, ok := restError(err)
	return ok && (status == http.StatusNotFound || code == codeUnknownChannel)
}

func isForbidden(err error) bool {
	status, code, ok := restError(err)
	return ok && (status == http.StatusForbidden || code == codeMissingAccess || code == codeMissingPerms)
}

// classify tags REST failures with the sentinel errors callers branch on. A 404 is
// reported as notFound.
func classify(err, notFound error) error {
	status, code, ok := restError(err)
	if !ok {
		return err
	}
	switch {
	case code == codeUnknownWebhook:
		return fmt.Errorf("%w: %w", relay.ErrWebhookGone, err)
	case isForbidden(err):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case status == http.StatusNotFound || code == codeUnknownChannel:
		return fmt.Errorf("%w: %w", notFound, err)
	}
	return err
}
