package shopify

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// GraphQLError carries the top-level error list of a transport-OK GraphQL
// response. It is independent of authentication failures and never
// triggers a token refresh.
type GraphQLError struct {
	Errors gqlerror.List
}

func (e *GraphQLError) Error() string {
	if len(e.Errors) == 0 {
		return "graphql request failed"
	}
	messages := make([]string, 0, len(e.Errors))
	for i, gqlErr := range e.Errors {
		msg := fmt.Sprintf("error %d: %s", i+1, gqlErr.Message)
		if len(gqlErr.Locations) > 0 {
			locs := make([]string, 0, len(gqlErr.Locations))
			for _, loc := range gqlErr.Locations {
				locs = append(locs, fmt.Sprintf("line %d, column %d", loc.Line, loc.Column))
			}
			msg += " (at " + strings.Join(locs, ", ") + ")"
		}
		messages = append(messages, msg)
	}
	return fmt.Sprintf("graphql request failed with %d error(s): %s", len(e.Errors), strings.Join(messages, "; "))
}

// UserError is a single entry of a mutation result's userErrors field.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// GraphQLUserError carries the userErrors of a mutation result. Like
// GraphQLError it is a response-shape failure, distinct from transport and
// auth failures.
type GraphQLUserError struct {
	Mutation string
	Errors   []UserError
}

func (e *GraphQLUserError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		if len(ue.Field) > 0 {
			messages = append(messages, strings.Join(ue.Field, ".")+": "+ue.Message)
		} else {
			messages = append(messages, ue.Message)
		}
	}
	return fmt.Sprintf("%s returned %d user error(s): %s", e.Mutation, len(e.Errors), strings.Join(messages, "; "))
}

// authRequestError is a transport failure classified as
// authentication-class; it triggers the single refresh-and-retry cycle.
type authRequestError struct {
	status int
	body   string
}

func (e *authRequestError) Error() string {
	return fmt.Sprintf("admin api rejected credentials: status %d", e.status)
}

// isAuthenticationSignal pattern-matches error text against known
// unauthorized/expired/forbidden signals.
func isAuthenticationSignal(message string) bool {
	lower := strings.ToLower(message)
	for _, signal := range []string{
		"unauthorized",
		"invalid access token",
		"invalid api key or access token",
		"token has expired",
		"forbidden",
	} {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
